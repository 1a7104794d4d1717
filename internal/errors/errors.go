// Package errors provides domain-specific error types for flash.
//
// These types carry structured context (port, option, range) that helps
// callers decide how to handle failures and provides better diagnostics
// than plain string wrapping.
package errors

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrBindExhausted     = errors.New("no free port in range")
	ErrCancelled         = errors.New("bind sequence cancelled")
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotStarted        = errors.New("not started")
	ErrShutdown          = errors.New("shut down")
	ErrShutdownFromLoop  = errors.New("shutdown called from a loop goroutine")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrUnsupportedSocket = errors.New("unsupported socket address family")
)

// ── Structured error types ───────────────────────────────────────────

// BindError records a single failed bind attempt.  Conflict is true when
// the port was already in use.
type BindError struct {
	Host     string
	Port     int
	Err      error
	Conflict bool
}

func (e *BindError) Error() string {
	s := fmt.Sprintf("bind %s:%d: %v", e.Host, e.Port, e.Err)
	if e.Conflict {
		s += " (in use)"
	}
	return s
}

func (e *BindError) Unwrap() error { return e.Err }

// BindExhaustedError is the terminal failure of a bind sequence: every
// port in [RangeStart, RangeEnd] was tried without success.
type BindExhaustedError struct {
	RangeStart int
	RangeEnd   int
	Last       error // last attempt's error, may be nil
}

func (e *BindExhaustedError) Error() string {
	msg := fmt.Sprintf("bind exhausted: ports %d-%d", e.RangeStart, e.RangeEnd)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last: %v)", e.Last)
	}
	return msg
}

func (e *BindExhaustedError) Unwrap() error { return e.Last }

// Is lets errors.Is(err, ErrBindExhausted) match.
func (e *BindExhaustedError) Is(target error) bool { return target == ErrBindExhausted }

// SocketOptionError reports an invalid or unsupported socket option.  It
// is fatal at configuration time and never retried.
type SocketOptionError struct {
	Option string
	Value  interface{}
	Err    error
}

func (e *SocketOptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("socket option %s=%v: %v", e.Option, e.Value, e.Err)
	}
	return fmt.Sprintf("socket option %s=%v: invalid value", e.Option, e.Value)
}

func (e *SocketOptionError) Unwrap() error { return e.Err }

// AcceptError is a transient accept failure.  The listener keeps running.
type AcceptError struct {
	Addr string
	Err  error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("accept on %s: %v", e.Addr, e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapBind creates a BindError, detecting address conflicts from the
// underlying error.
func WrapBind(host string, port int, err error) *BindError {
	return &BindError{
		Host:     host,
		Port:     port,
		Err:      err,
		Conflict: IsAddrInUse(err),
	}
}

// ── Classification helpers ───────────────────────────────────────────

// IsAddrInUse reports whether err means the address is already bound.
func IsAddrInUse(err error) bool {
	return err != nil && errors.Is(err, unix.EADDRINUSE)
}

// IsWouldBlock reports whether a non-blocking call found nothing to do.
func IsWouldBlock(err error) bool {
	return err != nil && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK))
}

// IsRetryableAccept reports whether an accept failure is benign: the
// listener is drained or the peer went away before it was accepted.  Such
// failures are never counted as accept errors.
func IsRetryableAccept(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.ECONNABORTED)
}

// IsResourceExhausted reports descriptor exhaustion (EMFILE / ENFILE),
// the accept failures that warrant pausing the accept path.
func IsResourceExhausted(err error) bool {
	return err != nil && (errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE))
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use flash/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
