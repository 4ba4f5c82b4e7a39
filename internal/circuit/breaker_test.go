package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"

	vfsconfig "github.com/objectfs/vfscore/internal/config"
	vfserrors "github.com/objectfs/vfscore/pkg/errors"
)

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{})
	if cb.Name() != "test" {
		t.Errorf("Name() = %q, want %q", cb.Name(), "test")
	}
	if cb.GetState() != StateClosed {
		t.Errorf("initial state = %v, want %v", cb.GetState(), StateClosed)
	}
	if cb.config.MaxRequests != 1 {
		t.Errorf("default MaxRequests = %d, want 1", cb.config.MaxRequests)
	}
	if cb.config.ReadyToTrip == nil {
		t.Error("default ReadyToTrip should not be nil")
	}
}

func TestExecuteRecordsOutcomes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{Interval: time.Minute, Timeout: time.Minute})

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testErr := errors.New("boom")
	if err := cb.Execute(func() error { return testErr }); err != testErr {
		t.Fatalf("Execute error = %v, want %v", err, testErr)
	}

	counts := cb.GetCounts()
	if counts.Requests != 2 || counts.TotalSuccesses != 1 || counts.TotalFailures != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if counts.ConsecutiveFailures != 1 || counts.ConsecutiveSuccesses != 0 {
		t.Fatalf("consecutive counts not reset across outcomes: %+v", counts)
	}
}

func TestStateCycleClosedOpenHalfOpenClosed(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{
		MaxRequests: 2,
		Interval:    100 * time.Millisecond,
		Timeout:     100 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state after failures = %v, want %v", cb.GetState(), StateOpen)
	}

	time.Sleep(150 * time.Millisecond)
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want %v", cb.GetState(), StateHalfOpen)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe in half-open: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state after successful probe = %v, want %v", cb.GetState(), StateClosed)
	}
}

func TestOpenStateRejectsWithoutCalling(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrOpenState {
		t.Fatalf("Execute error = %v, want %v", err, ErrOpenState)
	}
	if called {
		t.Fatal("function must not run while the breaker is open")
	}
}

func TestHalfOpenProbeBudget(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{
		MaxRequests: 1,
		Interval:    50 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = cb.Execute(func() error { return errors.New("failure") })
	time.Sleep(100 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(func() error { return nil })
	close(release)

	if err != ErrTooManyRequests {
		t.Fatalf("second probe error = %v, want %v", err, ErrTooManyRequests)
	}
}

func TestResetClosesBreaker(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = cb.Execute(func() error { return errors.New("failure") })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want %v", cb.GetState(), StateOpen)
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Fatalf("state after reset = %v, want %v", cb.GetState(), StateClosed)
	}
	if counts := cb.GetCounts(); counts.Requests != 0 || counts.TotalFailures != 0 {
		t.Fatalf("counts after reset = %+v, want zeroed", counts)
	}
}

func TestManagerGetBreakerIsStable(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{})

	cb1 := m.GetBreaker("/mnt/a")
	if cb1.Name() != "/mnt/a" {
		t.Fatalf("Name() = %q", cb1.Name())
	}
	if m.GetBreaker("/mnt/a") != cb1 {
		t.Fatal("same name must return the same breaker")
	}
	if m.GetBreaker("/mnt/b") == cb1 {
		t.Fatal("different names must return different breakers")
	}
	if len(m.GetAllBreakers()) != 2 {
		t.Fatalf("GetAllBreakers() = %d entries, want 2", len(m.GetAllBreakers()))
	}
}

func TestManagerRemoveBreaker(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{})
	m.GetBreaker("/mnt/a")
	m.RemoveBreaker("/mnt/a")
	if len(m.GetAllBreakers()) != 0 {
		t.Fatalf("expected empty manager after remove, got %d", len(m.GetAllBreakers()))
	}
}

func TestManagerConcurrentGetBreaker(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb := m.GetBreaker("/mnt/shared")
			_ = cb.Execute(func() error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if len(m.GetAllBreakers()) != 1 {
		t.Fatalf("concurrent access created %d breakers, want 1", len(m.GetAllBreakers()))
	}
}

func TestFromConfigThreshold(t *testing.T) {
	t.Parallel()

	cfg := FromConfig(vfsconfig.CircuitBreakerConfig{})
	if cfg.Timeout != 30*time.Second {
		t.Errorf("default Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.ReadyToTrip(Counts{ConsecutiveFailures: 4}) {
		t.Error("should not trip below default threshold of 5")
	}
	if !cfg.ReadyToTrip(Counts{ConsecutiveFailures: 5}) {
		t.Error("should trip at default threshold of 5")
	}

	custom := FromConfig(vfsconfig.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Second})
	if custom.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", custom.Timeout)
	}
	if !custom.ReadyToTrip(Counts{ConsecutiveFailures: 2}) {
		t.Error("should trip at configured threshold of 2")
	}
}

func TestGuardWrapsOpenBreakerAsStructuredError(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = m.Guard("/mnt/a", func() error { return errors.New("disk gone") })

	err := m.Guard("/mnt/a", func() error { return nil })
	if vfserrors.Code(err) != vfserrors.ErrUnavailable {
		t.Fatalf("expected ErrUnavailable once breaker is open, got %v", err)
	}
}

func TestGuardPassesThroughUnderlyingError(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{})
	want := errors.New("boom")
	if err := m.Guard("/mnt/b", func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Guard() error = %v, want %v", err, want)
	}
}
