package loop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-eventloop"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/util"
)

// ── Chooser ──────────────────────────────────────────────────────────

// Chooser selects which loop Group.Next hands out.
type Chooser int

const (
	// RoundRobin cycles through the loops in index order.
	RoundRobin Chooser = iota
	// LeastLoaded picks the loop with the fewest pinned resources; ties go
	// to the lowest index.
	LeastLoaded
)

func (c Chooser) String() string {
	switch c {
	case RoundRobin:
		return "round-robin"
	case LeastLoaded:
		return "least-loaded"
	default:
		return fmt.Sprintf("chooser(%d)", int(c))
	}
}

// ParseChooser maps "round-robin" / "least-loaded" onto a Chooser.
func ParseChooser(s string) (Chooser, error) {
	switch s {
	case "", "round-robin", "rr":
		return RoundRobin, nil
	case "least-loaded", "ll":
		return LeastLoaded, nil
	}
	return 0, fmt.Errorf("unknown loop chooser %q", s)
}

// ── Options ──────────────────────────────────────────────────────────

// Option configures a Group.
type Option func(*Group)

// WithName sets the prefix used in loop names and log lines.
func WithName(name string) Option { return func(g *Group) { g.name = name } }

// WithLogger sets the logger.  The default discards output.
func WithLogger(l *util.Logger) Option { return func(g *Group) { g.logger = l } }

// WithChooser selects the loop assignment policy.
func WithChooser(c Chooser) Option { return func(g *Group) { g.chooser = c } }

// ── Group ────────────────────────────────────────────────────────────

// Group is a fixed set of loops started together and shut down together.
type Group struct {
	name    string
	chooser Chooser
	logger  *util.Logger
	loops   []*Loop
	seq     atomic.Uint64

	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewGroup creates and starts n loops.  n must be at least 1.
func NewGroup(n int, opts ...Option) (*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("loop group needs at least one loop, got %d", n)
	}
	g := &Group{
		name:   "loop",
		logger: util.NopLogger(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.loops = make([]*Loop, 0, n)
	for i := 0; i < n; i++ {
		l, err := newLoop(g.name, i, g.logger)
		if err != nil {
			g.abort()
			return nil, err
		}
		g.loops = append(g.loops, l)
		go l.run(context.Background())

		// Wait until the loop is actually running so an early Shutdown
		// cannot discard queued work.
		ready := make(chan struct{})
		if err := l.Submit(func() { close(ready) }); err != nil {
			g.abort()
			return nil, err
		}
		<-ready
	}

	go func() {
		for _, l := range g.loops {
			<-l.done
		}
		close(g.done)
	}()

	g.logger.Verbose("%s group started with %d loop(s), chooser %s", g.name, n, g.chooser)
	return g, nil
}

// abort stops the loops created so far after a construction failure.
func (g *Group) abort() {
	for _, l := range g.loops {
		_ = l.el.Shutdown(context.Background())
		<-l.done
	}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Len returns the number of loops.
func (g *Group) Len() int { return len(g.loops) }

// Loop returns the i-th loop.
func (g *Group) Loop(i int) *Loop { return g.loops[i] }

// Loops returns all loops in index order.
func (g *Group) Loops() []*Loop {
	out := make([]*Loop, len(g.loops))
	copy(out, g.loops)
	return out
}

// Next returns the loop the chooser selects for a new resource.
func (g *Group) Next() *Loop {
	if len(g.loops) == 1 {
		return g.loops[0]
	}
	switch g.chooser {
	case LeastLoaded:
		best := g.loops[0]
		min := best.Pinned()
		for _, l := range g.loops[1:] {
			if p := l.Pinned(); p < min {
				best, min = l, p
			}
		}
		return best
	default:
		i := (g.seq.Add(1) - 1) % uint64(len(g.loops))
		return g.loops[i]
	}
}

// InLoop reports whether the caller runs on any loop of the group.
func (g *Group) InLoop() bool {
	for _, l := range g.loops {
		if l.InLoop() {
			return true
		}
	}
	return false
}

// Shutdown stops every loop after it drains the tasks already queued and
// waits for them to exit or for ctx to end.  Calling it from one of the
// group's own loops would deadlock, so it returns ErrShutdownFromLoop
// instead.  Repeated calls return the first call's result.
func (g *Group) Shutdown(ctx context.Context) error {
	if g.InLoop() {
		return ferrors.ErrShutdownFromLoop
	}
	g.shutdownOnce.Do(func() {
		errs := make([]error, len(g.loops))
		var wg sync.WaitGroup
		for i, l := range g.loops {
			wg.Add(1)
			go func(i int, l *Loop) {
				defer wg.Done()
				if err := l.el.Shutdown(ctx); err != nil && !ferrors.Is(err, eventloop.ErrLoopTerminated) {
					errs[i] = fmt.Errorf("%s: %w", l, err)
				}
			}(i, l)
		}
		wg.Wait()
		g.shutdownErr = ferrors.Join(errs...)
	})
	if g.shutdownErr != nil {
		return g.shutdownErr
	}
	select {
	case <-g.done:
		g.logger.Verbose("%s group stopped", g.name)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every loop has stopped.
func (g *Group) Done() <-chan struct{} { return g.done }
