package bootstrap

import (
	"time"

	"github.com/Ahnappi/flash-netty/attr"
	"github.com/Ahnappi/flash-netty/internal/bind"
	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/internal/metrics"
	"github.com/Ahnappi/flash-netty/util"
)

// AcceptHook runs exactly once per accepted connection, on the worker
// loop the connection is pinned to.  attrs is conn.Attrs().
type AcceptHook func(conn *Conn, attrs *attr.Store)

// Observer receives bind progress events.
type Observer = bind.Observer

// ListenerConfig describes one listener.  New copies it; changing the
// caller's value afterwards has no effect.
type ListenerConfig struct {
	// Host is the interface to bind; "" binds every IPv4 interface.
	Host string
	// Backlog is the listen queue length.  Must be positive.
	Backlog int
	// KeepAlive and NoDelay are applied to every accepted connection.
	KeepAlive bool
	NoDelay   bool

	// Attrs seed the listener's own store before the first bind attempt.
	Attrs *attr.Store
	// ChildAttrs is the template every accepted connection's store is
	// cloned from.
	ChildAttrs *attr.Store

	AcceptHook AcceptHook

	// MaxPort is the last port the bind sequence tries.  0 means 65535.
	MaxPort int

	// Observer receives bind events.  Nil logs them as structured events.
	Observer Observer
}

func (c *ListenerConfig) validate() error {
	if c.Backlog <= 0 {
		return &ferrors.SocketOptionError{Option: "SO_BACKLOG", Value: c.Backlog}
	}
	if c.AcceptHook == nil {
		return &ferrors.ConfigError{
			Field:   "accept-hook",
			Message: "an accept hook is required",
		}
	}
	if c.MaxPort < 0 || c.MaxPort > bind.MaxPort {
		return &ferrors.ConfigError{
			Field:   "max-port",
			Value:   c.MaxPort,
			Message: "must be between 1 and 65535, or 0 for no ceiling",
		}
	}
	return nil
}

// ── Options ──────────────────────────────────────────────────────────

// Option tunes a Bootstrap beyond its ListenerConfig.
type Option func(*Bootstrap)

// WithLogger sets the logger.  The default discards output.
func WithLogger(l *util.Logger) Option { return func(b *Bootstrap) { b.log = l } }

// WithMetrics records runtime counters into m instead of a private
// collector.
func WithMetrics(m *metrics.Collector) Option { return func(b *Bootstrap) { b.metrics = m } }

// WithAcceptPause sets how long accepting stops after the accept error
// threshold is reached (default 1s).
func WithAcceptPause(d time.Duration) Option {
	return func(b *Bootstrap) { b.acceptPause = d }
}

// WithAcceptErrorThreshold sets how many consecutive accept errors pause
// accepting (default 1).
func WithAcceptErrorThreshold(n int) Option {
	return func(b *Bootstrap) { b.acceptThreshold = n }
}
