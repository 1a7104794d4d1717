// Package retry provides the circuit breaker that throttles a failing
// accept path: after enough consecutive accept errors the circuit opens
// and accepting stops until the pause has elapsed.
package retry

import (
	"fmt"
	"sync"
	"time"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State represents the circuit breaker's operational state.
type State int

const (
	// StateClosed is normal operation: work passes through.
	StateClosed State = iota
	// StateOpen means work is failing and is being held off.
	StateOpen
	// StateHalfOpen lets work through again to probe for recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	// the circuit (default 1: the first accept error pauses accepting).
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before moving to
	// half-open (default 1s).
	ResetTimeout time.Duration
	// HalfOpenMax is the number of consecutive successes in half-open
	// state required to close the circuit (default 1).
	HalfOpenMax int
	// OnStateChange is called whenever the state transitions.  It runs
	// under the lock, so keep it fast.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the accept-path defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
	}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker tracks consecutive failures and holds work off once a
// threshold is crossed.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	openedAt      time.Time
	now           func() time.Time
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg == nil {
		cfg = def
	}
	cb := &CircuitBreaker{
		state:         StateClosed,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		now:           time.Now,
		onStateChange: cfg.OnStateChange,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = def.MaxFailures
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = def.ResetTimeout
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = def.HalfOpenMax
	}
	return cb
}

// Execute runs fn through the circuit breaker.  When the circuit is
// open, fn is not called and an error wrapping ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// Allow reports whether work may proceed now.  An open circuit whose
// pause has elapsed moves to half-open and allows work.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if wait := cb.remaining(); wait > 0 {
		return fmt.Errorf("%w: %d consecutive failures, retry in %v",
			ferrors.ErrCircuitOpen, cb.failures, wait)
	}
	cb.transition(StateHalfOpen)
	return nil
}

// Record feeds one outcome into the breaker and returns the resulting
// state.  Callers that drive work themselves (the accept loop) use it in
// place of Execute.
func (cb *CircuitBreaker) Record(err error) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return cb.state
	}

	cb.successes++
	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.halfOpenMax {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
	return cb.state
}

// RetryAfter returns how long an open circuit stays open, or 0.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	return cb.remaining()
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// ── internal ─────────────────────────────────────────────────────────

func (cb *CircuitBreaker) remaining() time.Duration {
	wait := cb.resetTimeout - cb.now().Sub(cb.openedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
