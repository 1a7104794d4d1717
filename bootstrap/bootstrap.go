// Package bootstrap composes a listening TCP server from two loop groups:
// a boss group that runs the bind sequence and accepts connections, and a
// worker group that connections are pinned to.
//
//	boss, _ := loop.NewGroup(1, loop.WithName("boss"))
//	worker, _ := loop.NewGroup(4, loop.WithName("worker"))
//
//	b, _ := bootstrap.New(boss, worker, bootstrap.ListenerConfig{
//		Backlog:    1024,
//		ChildAttrs: template,
//		AcceptHook: func(c *bootstrap.Conn, attrs *attr.Store) { ... },
//	})
//	_ = b.Start(8000)
//	port, err := b.Wait(ctx)
package bootstrap

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ahnappi/flash-netty/attr"
	"github.com/Ahnappi/flash-netty/internal/bind"
	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/internal/metrics"
	"github.com/Ahnappi/flash-netty/internal/retry"
	"github.com/Ahnappi/flash-netty/internal/socket"
	"github.com/Ahnappi/flash-netty/loop"
	"github.com/Ahnappi/flash-netty/util"
)

const (
	defaultAcceptPause     = time.Second
	defaultAcceptThreshold = 1
)

// Bootstrap owns one listener.  All listener and accept state is touched
// only on the boss loop chosen at Start.
type Bootstrap struct {
	boss, worker *loop.Group
	cfg          ListenerConfig
	listenIP     net.IP
	sockOpts     socket.Options
	attrs        *attr.Store
	child        *attr.Store

	log             *util.Logger
	metrics         *metrics.Collector
	acceptPause     time.Duration
	acceptThreshold int

	mu       sync.Mutex
	started  bool
	closed   bool
	seq      *bind.Sequencer
	bossLoop *loop.Loop
	conns    map[*Conn]struct{}

	// Boss loop only.
	ln       *socket.Listener
	paused   bool
	resuming bool
	resumeID loop.TimerID
	breaker  *retry.CircuitBreaker

	port      atomic.Int32
	bound     chan struct{}
	boundOnce sync.Once
	result    error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and returns an unstarted Bootstrap.  The groups are
// owned by the Bootstrap from here on: Shutdown stops them.
func New(boss, worker *loop.Group, cfg ListenerConfig, opts ...Option) (*Bootstrap, error) {
	if boss == nil || worker == nil {
		return nil, &ferrors.ConfigError{Field: "boss/worker", Message: "both loop groups are required"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ip, err := util.ResolveListenIP(cfg.Host)
	if err != nil {
		return nil, &ferrors.ConfigError{Field: "host", Value: cfg.Host, Message: err.Error()}
	}

	b := &Bootstrap{
		boss:            boss,
		worker:          worker,
		cfg:             cfg,
		listenIP:        ip,
		sockOpts:        socket.Options{KeepAlive: cfg.KeepAlive, NoDelay: cfg.NoDelay},
		attrs:           cfg.Attrs.Clone(),
		child:           cfg.ChildAttrs.Clone(),
		log:             util.NopLogger(),
		acceptPause:     defaultAcceptPause,
		acceptThreshold: defaultAcceptThreshold,
		conns:           make(map[*Conn]struct{}),
		bound:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	if b.cfg.Observer == nil {
		b.cfg.Observer = LogObserver{Logger: b.log}
	}
	b.breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures:  b.acceptThreshold,
		ResetTimeout: b.acceptPause,
		HalfOpenMax:  1,
		OnStateChange: func(from, to retry.State) {
			b.log.Debug("accept breaker %s -> %s", from, to)
		},
	})
	b.port.Store(-1)
	return b, nil
}

// Start begins binding at basePort on one of the boss loops and returns
// without waiting for the outcome.
func (b *Bootstrap) Start(basePort int) error {
	if basePort < 0 || basePort > bind.MaxPort {
		return &ferrors.ConfigError{Field: "port", Value: basePort, Message: "must be between 0 and 65535"}
	}
	if b.cfg.MaxPort > 0 && basePort > b.cfg.MaxPort {
		return &ferrors.ConfigError{
			Field:   "max-port",
			Value:   b.cfg.MaxPort,
			Message: "below the base port",
			Hint:    "use a range such as 8000-8100",
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ferrors.ErrShutdown
	}
	if b.started {
		b.mu.Unlock()
		return ferrors.ErrAlreadyStarted
	}
	b.started = true
	b.bossLoop = b.boss.Next()
	b.seq = bind.New(b.bossLoop, bind.BinderFunc(b.bindPort), bind.Options{
		Ceiling:     b.cfg.MaxPort,
		OnBound:     b.onBound,
		OnExhausted: b.finish,
		Observer:    b.cfg.Observer,
		Metrics:     b.metrics,
		Logger:      b.log,
	})
	seq := b.seq
	b.mu.Unlock()

	return seq.Start(basePort)
}

// Wait blocks until the bind sequence ends and returns the bound port,
// or the terminal error: *errors.BindExhaustedError, errors.ErrCancelled,
// errors.ErrShutdown.
func (b *Bootstrap) Wait(ctx context.Context) (int, error) {
	b.mu.Lock()
	started, closed := b.started, b.closed
	b.mu.Unlock()
	if !started && !closed {
		return -1, ferrors.ErrNotStarted
	}
	select {
	case <-b.bound:
		if b.result != nil {
			return -1, b.result
		}
		return b.Port(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Bound is closed when the bind sequence reaches any terminal outcome.
func (b *Bootstrap) Bound() <-chan struct{} { return b.bound }

// Port returns the bound port, or -1.
func (b *Bootstrap) Port() int { return int(b.port.Load()) }

// Attrs returns the listener's attribute store.
func (b *Bootstrap) Attrs() *attr.Store { return b.attrs }

// Metrics returns a snapshot of the runtime counters.
func (b *Bootstrap) Metrics() metrics.Snapshot { return b.metrics.Snapshot() }

// Connections returns the number of tracked open connections.
func (b *Bootstrap) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Cancel stops a bind sequence that has not finished yet.
func (b *Bootstrap) Cancel() {
	b.mu.Lock()
	seq := b.seq
	b.mu.Unlock()
	if seq != nil {
		seq.Cancel()
	}
}

// Shutdown cancels any bind in progress, closes the listener on its boss
// loop, closes every tracked connection, then shuts down both loop
// groups.  It must not be called from one of those loops.  Later calls
// return the first call's result.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	if b.boss.InLoop() || b.worker.InLoop() {
		return ferrors.ErrShutdownFromLoop
	}
	b.shutdownOnce.Do(func() {
		b.shutdownErr = b.shutdown(ctx)
	})
	return b.shutdownErr
}

func (b *Bootstrap) shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	seq, bossLoop := b.seq, b.bossLoop
	b.mu.Unlock()

	if seq != nil {
		seq.Cancel()
	}
	b.finish(ferrors.ErrShutdown)

	var errs []error
	if bossLoop != nil {
		done := make(chan struct{})
		if err := bossLoop.Submit(func() { b.closeListener(); close(done) }); err == nil {
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
			}
		}
	}

	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	if len(conns) > 0 {
		b.log.Verbose("closed %d connection(s)", len(conns))
	}

	errs = append(errs, b.worker.Shutdown(ctx))
	if b.boss != b.worker {
		errs = append(errs, b.boss.Shutdown(ctx))
	}
	return ferrors.Join(errs...)
}

// ── Bind callbacks (boss loop) ───────────────────────────────────────

func (b *Bootstrap) bindPort(port int) (bind.Socket, error) {
	ln, err := socket.Listen(b.listenIP, port, b.cfg.Backlog)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

func (b *Bootstrap) onBound(sock bind.Socket, port int) {
	ln := sock.(*socket.Listener)
	if err := b.bossLoop.RegisterFD(ln.FD(), b.onAcceptable); err != nil {
		_ = ln.Close()
		b.log.Error("listener on port %d: %v", port, err)
		b.finish(err)
		return
	}
	b.ln = ln
	b.port.Store(int32(port))
	b.log.Info("listening on %s", ln.Addr())
	b.finish(nil)
}

// finish records the terminal outcome of the bind sequence.  The first
// outcome wins.
func (b *Bootstrap) finish(err error) {
	b.boundOnce.Do(func() {
		b.result = err
		close(b.bound)
	})
}

func (b *Bootstrap) closeListener() {
	if b.resuming {
		_ = b.bossLoop.CancelTimer(b.resumeID)
		b.resuming = false
	}
	if b.ln == nil {
		return
	}
	if !b.paused {
		_ = b.bossLoop.UnregisterFD(b.ln.FD())
	}
	_ = b.ln.Close()
	b.log.Verbose("listener %s closed", b.ln.Addr())
	b.ln = nil
}

// ── Connection tracking ──────────────────────────────────────────────

func (b *Bootstrap) track(c *Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.conns[c] = struct{}{}
	b.metrics.ConnectionOpened()
	return true
}

func (b *Bootstrap) untrack(c *Conn) {
	b.mu.Lock()
	_, ok := b.conns[c]
	delete(b.conns, c)
	b.mu.Unlock()
	if ok {
		b.metrics.ConnectionClosed()
	}
}
