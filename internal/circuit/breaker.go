// Package circuit wraps each mounted disk adapter's calls in a breaker keyed
// by the mount's virtual path, so a misbehaving mount (a disk that has gone
// unresponsive, an NFS share that started timing out) stops consuming
// caller time and goroutines once it crosses a failure threshold, instead
// of every operation against that mount hanging or erroring individually.
package circuit

import (
	"errors"
	"sync"
	"time"

	vfsconfig "github.com/objectfs/vfscore/internal/config"
	vfserrors "github.com/objectfs/vfscore/pkg/errors"
)

// State is a breaker's position in the closed -> open -> half-open cycle.
type State int

const (
	// StateClosed passes requests through, counting failures.
	StateClosed State = iota
	// StateOpen rejects requests until the open timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe requests; one success
	// closes the breaker, one failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpenState is returned while the breaker is open.
	ErrOpenState = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is
	// already in use.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes one breaker.
type Config struct {
	// MaxRequests bounds concurrent probes while half-open.
	MaxRequests uint32
	// Interval is how long closed-state counts accumulate before being
	// reset; a mount that fails rarely never trips.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ReadyToTrip decides, from the current counts, whether a failure in
	// the closed state opens the breaker.
	ReadyToTrip func(counts Counts) bool
}

// Counts tracks request outcomes within the current state window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	LastActivity         time.Time
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker guards one mount's adapter calls.
type CircuitBreaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// NewCircuitBreaker builds a breaker, applying defaults for zero-valued
// config fields.
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
}

// Name returns the breaker's key (the mount's virtual path).
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker admits the request, recording its outcome.
// A rejected request returns ErrOpenState or ErrTooManyRequests without
// running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.observe(err)
	return err
}

// admit decides whether a request may proceed in the current state.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.refresh(now) {
	case StateOpen:
		return ErrOpenState
	case StateHalfOpen:
		if cb.counts.Requests >= cb.config.MaxRequests {
			return ErrTooManyRequests
		}
	}
	cb.counts.Requests++
	cb.counts.LastActivity = now
	return nil
}

// observe records a completed request's outcome and drives state
// transitions: a half-open success closes the breaker, a failure past the
// trip threshold (or any half-open failure) opens it.
func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state := cb.refresh(now)

	if err == nil {
		cb.counts.success()
		if state == StateHalfOpen {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.counts.failure()
	switch state {
	case StateClosed:
		if cb.config.ReadyToTrip(cb.counts) {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// refresh advances expiry-driven transitions (closed-window count reset,
// open -> half-open) and returns the resulting state. Caller must hold mu.
func (cb *CircuitBreaker) refresh(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.counts = Counts{}
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state
}

// transition moves to state, clearing counts. Caller must hold mu.
func (cb *CircuitBreaker) transition(state State, now time.Time) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.counts = Counts{}

	switch state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}
}

// GetState returns the current state, advancing any expiry-driven
// transition first.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refresh(time.Now())
}

// GetCounts returns a copy of the current counts.
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears its counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, time.Now())
}

// Manager holds one lazily-created breaker per mount virtual path.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   Config
}

// NewManager creates an empty Manager; breakers are created on first use,
// so mounting and unmounting never need to touch it directly.
func NewManager(config Config) *Manager {
	return &Manager{breakers: make(map[string]*CircuitBreaker), config: config}
}

// FromConfig derives breaker Config from the configuration tree's circuit
// breaker section, mapping FailureThreshold onto consecutive failures: a
// mount should open after N failures in a row regardless of how many prior
// requests succeeded, since a disk that just went offline has no failure
// rate history to speak of yet.
func FromConfig(cfg vfsconfig.CircuitBreakerConfig) Config {
	threshold := uint32(cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Config{
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
}

// NewManagerForMounts builds a Manager configured from the circuit breaker
// section of the application configuration.
func NewManagerForMounts(cfg vfsconfig.CircuitBreakerConfig) *Manager {
	return NewManager(FromConfig(cfg))
}

// Guard runs fn through the breaker for mountPath, translating a tripped
// breaker into a structured error so callers one layer up (the facade)
// don't need to know about this package's sentinel errors.
func (m *Manager) Guard(mountPath string, fn func() error) error {
	err := m.GetBreaker(mountPath).Execute(fn)
	if errors.Is(err, ErrOpenState) || errors.Is(err, ErrTooManyRequests) {
		return vfserrors.Wrap(vfserrors.ErrUnavailable, mountPath,
			"mount is temporarily unavailable, breaker is open", err)
	}
	return err
}

// GetBreaker gets or creates the breaker for name.
func (m *Manager) GetBreaker(name string) *CircuitBreaker {
	m.mu.RLock()
	if breaker, exists := m.breakers[name]; exists {
		m.mu.RUnlock()
		return breaker
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}
	breaker := NewCircuitBreaker(name, m.config)
	m.breakers[name] = breaker
	return breaker
}

// GetAllBreakers returns a copy of the breaker map, for health reporting.
func (m *Manager) GetAllBreakers() map[string]*CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*CircuitBreaker, len(m.breakers))
	for name, breaker := range m.breakers {
		result[name] = breaker
	}
	return result
}

// RemoveBreaker drops the breaker for name; called on unmount so a stale
// open breaker doesn't outlive its mount.
func (m *Manager) RemoveBreaker(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, name)
}
