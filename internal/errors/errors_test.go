package errors

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBindError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *BindError
		want string
	}{
		{
			name: "conflict",
			err:  WrapBind("127.0.0.1", 8000, unix.EADDRINUSE),
			want: "bind 127.0.0.1:8000: address already in use (in use)",
		},
		{
			name: "other",
			err:  WrapBind("", 80, fmt.Errorf("permission denied")),
			want: "bind :80: permission denied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBindError_Unwrap(t *testing.T) {
	err := WrapBind("", 1, io.EOF)
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
	if err.Conflict {
		t.Error("io.EOF is not an address conflict")
	}
}

func TestBindExhaustedError(t *testing.T) {
	last := WrapBind("", 8002, unix.EADDRINUSE)
	err := &BindExhaustedError{RangeStart: 8000, RangeEnd: 8002, Last: last}

	want := "bind exhausted: ports 8000-8002 (last: bind :8002: address already in use (in use))"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, ErrBindExhausted) {
		t.Error("should match ErrBindExhausted")
	}
	if !Is(err, unix.EADDRINUSE) {
		t.Error("should unwrap to the last attempt's errno")
	}

	var be *BindExhaustedError
	wrapped := fmt.Errorf("start: %w", err)
	if !As(wrapped, &be) || be.RangeEnd != 8002 {
		t.Errorf("As() failed: %+v", be)
	}
}

func TestSocketOptionError_Format(t *testing.T) {
	err := &SocketOptionError{Option: "backlog", Value: 0}
	if got, want := err.Error(), "socket option backlog=0: invalid value"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	err = &SocketOptionError{Option: "TCP_NODELAY", Value: true, Err: unix.ENOPROTOOPT}
	if !Is(err, unix.ENOPROTOOPT) {
		t.Error("should unwrap to ENOPROTOOPT")
	}
}

func TestAcceptError_Unwrap(t *testing.T) {
	err := &AcceptError{Addr: "0.0.0.0:8000", Err: unix.EMFILE}
	if !Is(err, unix.EMFILE) {
		t.Error("should unwrap to EMFILE")
	}
	if !IsResourceExhausted(err) {
		t.Error("EMFILE should be resource exhaustion")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 0-65535",
				Hint:    "use a port between 0 and 65535",
			},
			want: "config: --port=99999: out of range 0-65535\n  hint: use a port between 0 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "workers",
				Message: "must be positive",
			},
			want: "config: --workers: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestIsAddrInUse(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"errno", unix.EADDRINUSE, true},
		{"syscall errno", syscall.EADDRINUSE, true},
		{"os.SyscallError", os.NewSyscallError("bind", unix.EADDRINUSE), true},
		{"access", unix.EACCES, false},
		{"plain", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAddrInUse(tt.err); got != tt.want {
				t.Errorf("IsAddrInUse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryableAccept(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eagain", unix.EAGAIN, true},
		{"eintr", unix.EINTR, true},
		{"aborted", os.NewSyscallError("accept", unix.ECONNABORTED), true},
		{"emfile", unix.EMFILE, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableAccept(tt.err); got != tt.want {
				t.Errorf("IsRetryableAccept() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsWouldBlock(t *testing.T) {
	if !IsWouldBlock(unix.EAGAIN) || !IsWouldBlock(unix.EWOULDBLOCK) {
		t.Error("EAGAIN and EWOULDBLOCK are would-block")
	}
	if IsWouldBlock(unix.ECONNABORTED) || IsWouldBlock(nil) {
		t.Error("only EAGAIN / EWOULDBLOCK are would-block")
	}
}

func TestSentinels(t *testing.T) {
	// Verify sentinel errors are distinct.
	sentinels := []error{
		ErrBindExhausted, ErrCancelled, ErrAlreadyStarted, ErrNotStarted,
		ErrShutdown, ErrShutdownFromLoop, ErrCircuitOpen, ErrUnsupportedSocket,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
