// Package bind implements the self-retrying bind protocol: starting at a
// base port it tries one port at a time, moving to the next port after
// each failure, until a bind succeeds or the port range runs out.
//
// The sequencer is driven entirely by tasks on one executor (an event
// loop).  An attempt and its completion are separate tasks, so a long run
// of failures is a flat sequence of queued tasks rather than a recursion,
// and at most one attempt is ever outstanding.
package bind

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/internal/metrics"
	"github.com/Ahnappi/flash-netty/util"
)

// MaxPort is the highest TCP port.
const MaxPort = 65535

// ── Collaborators ────────────────────────────────────────────────────

// Executor runs tasks one at a time in submission order.  *loop.Loop
// satisfies it.
type Executor interface {
	Submit(fn func()) error
}

// Socket is a successfully bound resource.
type Socket interface {
	io.Closer
	Port() int
}

// Binder performs one bind attempt.
type Binder interface {
	Bind(port int) (Socket, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(port int) (Socket, error)

// Bind calls f(port).
func (f BinderFunc) Bind(port int) (Socket, error) { return f(port) }

// Observer receives bind progress events.
type Observer interface {
	BindSuccess(port int)
	BindFailure(port int, err error)
	BindExhausted(rangeStart, rangeEnd int)
}

type nopObserver struct{}

func (nopObserver) BindSuccess(int) {}
func (nopObserver) BindFailure(int, error) {}
func (nopObserver) BindExhausted(int, int) {}

// Options configures a Sequencer.  Every field is optional.
type Options struct {
	// Ceiling is the last port tried.  0 means MaxPort.
	Ceiling int

	// OnBound runs on the executor once a bind succeeds.  It takes
	// ownership of sock.
	OnBound func(sock Socket, port int)

	// OnExhausted runs once when the sequence ends without a bound port:
	// a *errors.BindExhaustedError when the range ran out or the executor
	// refused work, errors.ErrCancelled after Cancel.
	OnExhausted func(err error)

	Observer Observer
	Metrics  *metrics.Collector
	Logger   *util.Logger
}

// ── State ────────────────────────────────────────────────────────────

// State is the sequencer's lifecycle position.
type State int32

const (
	Idle State = iota
	Attempting
	Bound
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Bound:
		return "bound"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ── Sequencer ────────────────────────────────────────────────────────

// Sequencer scans forward from a base port until one port binds.
//
// State, Port, Attempts and InFlight may be called from any goroutine.
type Sequencer struct {
	exec   Executor
	binder Binder
	opts   Options
	obs    Observer
	log    *util.Logger

	state    atomic.Int32
	port     atomic.Int32
	inFlight atomic.Int32

	mu       sync.Mutex
	attempts []int

	// Owned by the executor after Start.
	base      int
	ceiling   int
	candidate int
}

// New returns an idle sequencer.
func New(exec Executor, binder Binder, opts Options) *Sequencer {
	s := &Sequencer{
		exec:   exec,
		binder: binder,
		opts:   opts,
		obs:    opts.Observer,
		log:    opts.Logger,
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.log == nil {
		s.log = util.NopLogger()
	}
	s.port.Store(-1)
	return s
}

// Start begins the sequence at basePort and returns without waiting.
// A base port outside the range ends the sequence as Exhausted through
// OnExhausted rather than as an error from Start.
func (s *Sequencer) Start(basePort int) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Attempting)) {
		return ferrors.ErrAlreadyStarted
	}

	s.ceiling = s.opts.Ceiling
	if s.ceiling <= 0 || s.ceiling > MaxPort {
		s.ceiling = MaxPort
	}
	s.base = basePort
	s.candidate = basePort

	if basePort < 0 || basePort > MaxPort || basePort > s.ceiling {
		s.exhaust(nil)
		return nil
	}
	s.log.Verbose("bind sequence started at %d (ceiling %d)", basePort, s.ceiling)
	s.submit(s.attempt)
	return nil
}

// Cancel ends an unfinished sequence.  A bind that completes afterwards
// has its socket closed and is otherwise ignored.
func (s *Sequencer) Cancel() {
	if s.finish(Exhausted) {
		s.log.Verbose("bind sequence cancelled")
		if s.opts.OnExhausted != nil {
			s.opts.OnExhausted(ferrors.ErrCancelled)
		}
	}
}

// State returns the current state.
func (s *Sequencer) State() State { return State(s.state.Load()) }

// Port returns the bound port, or -1 if not bound.
func (s *Sequencer) Port() int { return int(s.port.Load()) }

// InFlight returns the number of outstanding attempts (0 or 1).
func (s *Sequencer) InFlight() int { return int(s.inFlight.Load()) }

// Attempts returns the ports tried so far, in order.
func (s *Sequencer) Attempts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// ── Loop tasks ───────────────────────────────────────────────────────

func (s *Sequencer) attempt() {
	if s.State() != Attempting {
		return
	}
	port := s.candidate

	s.mu.Lock()
	s.attempts = append(s.attempts, port)
	s.mu.Unlock()
	s.inFlight.Add(1)
	s.opts.Metrics.BindStarted()
	s.log.Debug("bind attempt on port %d", port)

	sock, err := s.binder.Bind(port)

	if serr := s.exec.Submit(func() { s.complete(port, sock, err) }); serr != nil {
		s.inFlight.Add(-1)
		s.opts.Metrics.BindFinished(false)
		if sock != nil {
			_ = sock.Close()
		}
		s.exhaust(serr)
	}
}

func (s *Sequencer) complete(port int, sock Socket, err error) {
	s.inFlight.Add(-1)
	s.opts.Metrics.BindFinished(err == nil)

	if s.State() != Attempting {
		if sock != nil {
			_ = sock.Close()
		}
		return
	}

	if err == nil {
		bound := sock.Port()
		if !s.finish(Bound) {
			_ = sock.Close()
			return
		}
		s.port.Store(int32(bound))
		s.opts.Metrics.Bound(bound)
		s.obs.BindSuccess(bound)
		if s.opts.OnBound != nil {
			s.opts.OnBound(sock, bound)
		}
		return
	}

	if sock != nil {
		_ = sock.Close()
	}
	s.obs.BindFailure(port, err)

	next := port + 1
	if next > s.ceiling {
		s.exhaust(err)
		return
	}
	s.candidate = next
	s.submit(s.attempt)
}

// ── Helpers ──────────────────────────────────────────────────────────

func (s *Sequencer) submit(fn func()) {
	if err := s.exec.Submit(fn); err != nil {
		s.exhaust(err)
	}
}

// finish moves an unfinished sequence to a terminal state.  Only the
// first terminal transition wins.
func (s *Sequencer) finish(to State) bool {
	for {
		cur := s.state.Load()
		if State(cur) == Bound || State(cur) == Exhausted {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

func (s *Sequencer) exhaust(last error) {
	if !s.finish(Exhausted) {
		return
	}
	err := &ferrors.BindExhaustedError{RangeStart: s.base, RangeEnd: s.ceiling, Last: last}
	s.log.Verbose("%v", err)
	s.obs.BindExhausted(s.base, s.ceiling)
	if s.opts.OnExhausted != nil {
		s.opts.OnExhausted(err)
	}
}
