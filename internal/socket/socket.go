//go:build linux || darwin

// Package socket creates non-blocking TCP listening sockets directly on
// top of the socket syscalls, so the listen backlog and per-connection
// options are under our control and the descriptor can be handed to an
// event loop for readiness notification.
package socket

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/util"
)

// Options are applied to every accepted connection.
type Options struct {
	KeepAlive bool
	NoDelay   bool
}

// Listener is a bound, listening, non-blocking TCP socket.
type Listener struct {
	fd     int
	host   string
	port   int
	closed atomic.Bool
}

// Listen binds ip:port and starts listening with the given backlog.  A nil
// ip means all IPv4 interfaces; port 0 asks the kernel for a free port.
// Bind failures are returned as *errors.BindError.
func Listen(ip net.IP, port, backlog int) (*Listener, error) {
	sa, family, err := sockaddr(ip, port)
	if err != nil {
		return nil, err
	}
	host := "0.0.0.0"
	if ip != nil {
		host = ip.String()
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, ferrors.WrapBind(host, port, os.NewSyscallError("socket", err))
	}
	fail := func(op string, err error) (*Listener, error) {
		_ = unix.Close(fd)
		return nil, ferrors.WrapBind(host, port, os.NewSyscallError(op, err))
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fail("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return &Listener{fd: fd, host: host, port: sockaddrPort(bound)}, nil
}

func sockaddr(ip net.IP, port int) (unix.Sockaddr, int, error) {
	if ip == nil {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip16)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, fmt.Errorf("%w: %v", ferrors.ErrUnsupportedSocket, ip)
}

func sockaddrPort(sa unix.Sockaddr) int {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	}
	return 0
}

// FD returns the listening descriptor for readiness registration.
func (l *Listener) FD() int { return l.fd }

// Port returns the bound port (the kernel's choice when 0 was requested).
func (l *Listener) Port() int { return l.port }

// Addr returns host:port.
func (l *Listener) Addr() string { return util.FormatAddr(l.host, l.port) }

// Accept takes one pending connection.  It returns the new descriptor,
// already non-blocking, or the raw errno; unix.EAGAIN means the backlog is
// drained.
func (l *Listener) Accept() (int, error) {
	for {
		nfd, _, err := unix.Accept(l.fd)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			return -1, err
		}
		return nfd, nil
	}
}

// Close closes the listening socket.  Only the first call has effect.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(l.fd)
}

// ── Accepted connections ─────────────────────────────────────────────

// Apply sets the configured options on an accepted descriptor.
func (o Options) Apply(fd int) error {
	if err := setBool(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, o.KeepAlive); err != nil {
		return &ferrors.SocketOptionError{Option: "SO_KEEPALIVE", Value: o.KeepAlive, Err: err}
	}
	if err := setBool(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, o.NoDelay); err != nil {
		return &ferrors.SocketOptionError{Option: "TCP_NODELAY", Value: o.NoDelay, Err: err}
	}
	return nil
}

func setBool(fd, level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, level, opt, v))
}

// Conn turns an accepted descriptor into a net.Conn and applies opts to
// it.  The options go on after the conversion because the net package
// enables TCP_NODELAY on every TCPConn it builds.  The descriptor is
// consumed: it is closed whether or not the conversion succeeds.
func Conn(fd int, opts Options) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "tcp:"+strconv.Itoa(fd))
	c, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	if err := opts.applyConn(c); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (o Options) applyConn(c net.Conn) error {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return fmt.Errorf("%w: %T", ferrors.ErrUnsupportedSocket, c)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var aerr error
	if err := rc.Control(func(fd uintptr) { aerr = o.Apply(int(fd)) }); err != nil {
		return err
	}
	return aerr
}
