// Package metrics provides lightweight, lock-free counters and gauges
// for tracking the runtime statistics of a listener bootstrap.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one Bootstrap.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	bindAttempts   atomic.Int64
	bindFailures   atomic.Int64
	bindInFlight   atomic.Int64
	bindInFlightHi atomic.Int64
	boundPort      atomic.Int64

	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	acceptErrors      atomic.Int64
	acceptPauses      atomic.Int64
	hookPanics        atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	boundAt      time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Bind metrics ─────────────────────────────────────────────────────

// BindStarted records the start of a bind attempt.
func (c *Collector) BindStarted() {
	if c == nil {
		return
	}
	c.bindAttempts.Add(1)
	n := c.bindInFlight.Add(1)
	for {
		hi := c.bindInFlightHi.Load()
		if n <= hi || c.bindInFlightHi.CompareAndSwap(hi, n) {
			return
		}
	}
}

// BindFinished records the completion of a bind attempt.
func (c *Collector) BindFinished(ok bool) {
	if c == nil {
		return
	}
	c.bindInFlight.Add(-1)
	if !ok {
		c.bindFailures.Add(1)
	}
}

// Bound records the port the listener finally bound.
func (c *Collector) Bound(port int) {
	if c == nil {
		return
	}
	c.boundPort.Store(int64(port))
	c.mu.Lock()
	c.boundAt = time.Now()
	c.mu.Unlock()
}

// BindAttempts returns the number of bind attempts started.
func (c *Collector) BindAttempts() int64 {
	if c == nil {
		return 0
	}
	return c.bindAttempts.Load()
}

// BindFailures returns the number of failed bind attempts.
func (c *Collector) BindFailures() int64 {
	if c == nil {
		return 0
	}
	return c.bindFailures.Load()
}

// MaxBindInFlight returns the highest number of simultaneously
// outstanding bind attempts ever observed.
func (c *Collector) MaxBindInFlight() int64 {
	if c == nil {
		return 0
	}
	return c.bindInFlightHi.Load()
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime accepted-connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Accept metrics ───────────────────────────────────────────────────

// AcceptPaused records one pause of the accept path.
func (c *Collector) AcceptPaused() {
	if c == nil {
		return
	}
	c.acceptPauses.Add(1)
}

// AcceptPauses returns how many times accepting was paused.
func (c *Collector) AcceptPauses() int64 {
	if c == nil {
		return 0
	}
	return c.acceptPauses.Load()
}

// HookPanicked records a recovered accept-hook panic.
func (c *Collector) HookPanicked() {
	if c == nil {
		return
	}
	c.hookPanics.Add(1)
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordAcceptError increments the accept error counter and stores the
// message.
func (c *Collector) RecordAcceptError(msg string) {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// AcceptErrors returns the total number of accept errors recorded.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	BoundPort         int    `json:"bound_port,omitempty"`
	BoundAt           string `json:"bound_at,omitempty"`
	BindAttempts      int64  `json:"bind_attempts"`
	BindFailures      int64  `json:"bind_failures"`
	MaxBindInFlight   int64  `json:"max_bind_in_flight"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	AcceptErrors      int64  `json:"accept_errors"`
	AcceptPauses      int64  `json:"accept_pauses"`
	HookPanics        int64  `json:"hook_panics"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		BoundPort:         int(c.boundPort.Load()),
		BindAttempts:      c.bindAttempts.Load(),
		BindFailures:      c.bindFailures.Load(),
		MaxBindInFlight:   c.bindInFlightHi.Load(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		AcceptErrors:      c.acceptErrors.Load(),
		AcceptPauses:      c.acceptPauses.Load(),
		HookPanics:        c.hookPanics.Load(),
	}
	if !c.boundAt.IsZero() {
		s.BoundAt = c.boundAt.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
