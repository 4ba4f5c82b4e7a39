package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/objectfs/vfscore/pkg/types"
)

func TestTryLockSharedShared(t *testing.T) {
	m := New()
	if err := m.TryLock("/f", "h1", types.LockShared); err != nil {
		t.Fatalf("h1 shared: %v", err)
	}
	if err := m.TryLock("/f", "h2", types.LockShared); err != nil {
		t.Fatalf("h2 shared: %v", err)
	}
}

func TestTryLockSharedThenExclusiveDifferentHandleFails(t *testing.T) {
	m := New()
	if err := m.TryLock("/f", "h1", types.LockShared); err != nil {
		t.Fatal(err)
	}
	err := m.TryLock("/f", "h2", types.LockExclusive)
	var le *ErrLocked
	if !errors.As(err, &le) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestUpgradeDowngradeSameHandle(t *testing.T) {
	m := New()
	if err := m.TryLock("/f", "h1", types.LockShared); err != nil {
		t.Fatal(err)
	}
	if err := m.TryLock("/f", "h1", types.LockExclusive); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if err := m.TryLock("/f", "h1", types.LockShared); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
}

func TestUnlockRemovesHolderAndEntry(t *testing.T) {
	m := New()
	_ = m.TryLock("/f", "h1", types.LockExclusive)
	if !m.IsLocked("/f") {
		t.Fatal("expected locked")
	}
	m.Unlock("/f", "h1")
	if m.IsLocked("/f") {
		t.Fatal("expected unlocked after release")
	}
}

func TestUnlockAllReleasesEveryPath(t *testing.T) {
	m := New()
	_ = m.TryLock("/a", "h1", types.LockExclusive)
	_ = m.TryLock("/b", "h1", types.LockShared)
	m.UnlockAll("h1")
	if m.IsLocked("/a") || m.IsLocked("/b") {
		t.Fatal("expected all paths unlocked")
	}
}

func TestLockBlocksThenWakesOnUnlock(t *testing.T) {
	m := New()
	_ = m.TryLock("/f", "h1", types.LockExclusive)

	done := make(chan error, 1)
	go func() {
		done <- m.Lock(context.Background(), "/f", "h2", types.LockExclusive)
	}()

	select {
	case <-done:
		t.Fatal("h2 should still be blocked")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock("/f", "h1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("h2 Lock() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("h2 never woke after h1 unlocked")
	}
}

func TestLockCanceledByContext(t *testing.T) {
	m := New()
	_ = m.TryLock("/f", "h1", types.LockExclusive)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Lock(ctx, "/f", "h2", types.LockExclusive)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestDeleteVsLockedCheck(t *testing.T) {
	m := New()
	if m.IsLocked("/f") {
		t.Fatal("expected not locked initially")
	}
	_ = m.TryLock("/f", "h1", types.LockShared)
	if !m.IsLocked("/f") {
		t.Fatal("expected locked")
	}
}
