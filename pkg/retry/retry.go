// Package retry provides bounded exponential backoff for adapter and
// blob-store I/O. VFS-logic errors (NotFound, AlreadyExists, and the like)
// carry their own retryability and are never retried; raw errors from a
// backend are assumed transient.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/objectfs/vfscore/pkg/errors"
)

// Config defines retry behavior. Zero-valued fields take the defaults from
// DefaultConfig.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig returns the default retry tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer executes functions with exponential backoff between attempts.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling zero-valued config fields from the
// defaults.
func New(config Config) *Retryer {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, fails non-retryably, or exhausts the
// attempt budget.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// DoWithContext is Do with cancellation: ctx is checked before each attempt
// and while sleeping between attempts.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("operation canceled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt >= r.config.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(r.backoff(attempt)):
		}
	}
}

// retryable reports whether err is worth another attempt: structured
// errors declare it themselves, anything else (a raw backend error) is
// assumed transient.
func retryable(err error) bool {
	var ve *errors.VFSError
	if stderr.As(err, &ve) {
		return ve.Retryable
	}
	return true
}

// backoff computes the sleep before the next attempt: exponential in the
// attempt number, capped at MaxDelay, with optional ±20% jitter so a herd
// of callers retrying the same backend doesn't stay synchronized.
func (r *Retryer) backoff(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}
