package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/objectfs/vfscore/pkg/errors"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	r := New(DefaultConfig())
	calls := 0
	err := r.Do(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableVFSError(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	calls := 0
	err := r.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrLocked, "/a", "busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableVFSError(t *testing.T) {
	r := New(DefaultConfig())
	calls := 0
	err := r.Do(func() error {
		calls++
		return errors.New(errors.ErrNotFound, "/a", "missing")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry on non-retryable error), got %d", calls)
	}
}

func TestDoWithContextHonorsCancellation(t *testing.T) {
	r := New(Config{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.DoWithContext(ctx, func(context.Context) error {
		return fmt.Errorf("transient")
	})
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
