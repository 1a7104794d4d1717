package retry

import (
	"fmt"
	"testing"
	"time"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg *CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clk.now
	return cb, clk
}

var errAccept = fmt.Errorf("accept: too many open files")

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.maxFailures != 1 {
		t.Errorf("maxFailures = %d, want 1", cb.maxFailures)
	}
	if cb.resetTimeout != time.Second {
		t.Errorf("resetTimeout = %v, want 1s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 1 {
		t.Errorf("halfOpenMax = %d, want 1", cb.halfOpenMax)
	}

	cb = NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: -3})
	if cb.maxFailures != 1 {
		t.Errorf("non-positive MaxFailures not defaulted: %d", cb.maxFailures)
	}
}

func TestCircuitBreaker_NormalOperation(t *testing.T) {
	cb, _ := newTestBreaker(nil)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Second})

	for i := 0; i < 2; i++ {
		if st := cb.Record(errAccept); st != StateClosed {
			t.Fatalf("failure %d: state %s, want closed", i+1, st)
		}
	}
	if st := cb.Record(errAccept); st != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", st)
	}
	if cb.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HoldsOffWhileOpen(t *testing.T) {
	cb, clk := newTestBreaker(nil)
	cb.Record(errAccept)

	if got := cb.RetryAfter(); got != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !ferrors.Is(err, ferrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not have been called when circuit is open")
	}

	clk.advance(400 * time.Millisecond)
	if got := cb.RetryAfter(); got != 600*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 600ms", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	cb.Record(errAccept)
	clk.advance(20 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after pause: %v", err)
	}
	if cb.CurrentState() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.CurrentState())
	}

	if st := cb.Record(nil); st != StateHalfOpen {
		t.Errorf("expected half-open after first success, got %s", st)
	}
	if st := cb.Record(nil); st != StateClosed {
		t.Errorf("expected closed after 2 successes, got %s", st)
	}
	if cb.RetryAfter() != 0 {
		t.Error("closed circuit should not report a wait")
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clk := newTestBreaker(nil)

	cb.Record(errAccept)
	clk.advance(2 * time.Second)
	_ = cb.Allow()

	if st := cb.Record(errAccept); st != StateOpen {
		t.Errorf("expected open after half-open failure, got %s", st)
	}
	if got := cb.RetryAfter(); got != time.Second {
		t.Errorf("pause restarts on reopen: RetryAfter = %v", got)
	}
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	var transitions []string
	cb, clk := newTestBreaker(&CircuitBreakerConfig{
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s→%s", from, to))
		},
	})

	cb.Execute(func() error { return errAccept }) //nolint:errcheck
	clk.advance(2 * time.Second)
	cb.Execute(func() error { return nil }) //nolint:errcheck

	want := []string{"closed→open", "open→half-open", "half-open→closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(&CircuitBreakerConfig{MaxFailures: 3})

	cb.Record(errAccept)
	cb.Record(errAccept)
	cb.Record(nil)

	if cb.Failures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", cb.Failures())
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
