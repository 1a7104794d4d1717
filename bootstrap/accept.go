package bootstrap

import (
	"time"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/internal/retry"
	"github.com/Ahnappi/flash-netty/internal/socket"
)

// maxAcceptsPerWakeup bounds one readiness callback.  The poller is
// level-triggered, so a backlog left behind is reported again.
const maxAcceptsPerWakeup = 64

// onAcceptable drains pending connections.  Runs on the boss loop.
func (b *Bootstrap) onAcceptable() {
	for i := 0; i < maxAcceptsPerWakeup; i++ {
		if b.ln == nil || b.paused {
			return
		}
		fd, err := b.ln.Accept()
		if err != nil {
			if ferrors.IsWouldBlock(err) {
				return
			}
			if ferrors.IsRetryableAccept(err) {
				continue
			}
			b.acceptFailed(err)
			return
		}
		b.breaker.Record(nil)
		b.handoff(fd)
	}
}

// handoff prepares an accepted descriptor and passes it to a worker loop.
func (b *Bootstrap) handoff(fd int) {
	nc, err := socket.Conn(fd, b.sockOpts)
	if err != nil {
		b.reportAcceptError(err)
		return
	}

	w := b.worker.Next()
	w.Pin()
	c := &Conn{
		Conn:   nc,
		attrs:  b.child.Clone(),
		parent: b.attrs,
		loop:   w,
		owner:  b,
	}
	if !b.track(c) {
		_ = c.Close()
		return
	}
	b.log.Debug("accepted %s on %s", nc.RemoteAddr(), w)

	if err := w.Submit(func() { b.runHook(c) }); err != nil {
		b.log.Warn("dropping %s: %v", nc.RemoteAddr(), err)
		_ = c.Close()
	}
}

// runHook invokes the accept hook on the connection's worker loop.
func (b *Bootstrap) runHook(c *Conn) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.HookPanicked()
			b.log.Error("accept hook panicked for %s: %v", c.RemoteAddr(), r)
			_ = c.Close()
		}
	}()
	b.cfg.AcceptHook(c, c.Attrs())
}

// ── Accept errors ────────────────────────────────────────────────────

func (b *Bootstrap) reportAcceptError(err error) {
	aerr := &ferrors.AcceptError{Addr: b.ln.Addr(), Err: err}
	b.metrics.RecordAcceptError(aerr.Error())
	b.log.Warn("%v", aerr)
}

// acceptFailed counts a failed accept and unregisters the listener for
// the breaker's pause once it opens.
func (b *Bootstrap) acceptFailed(err error) {
	b.reportAcceptError(err)
	if ferrors.IsResourceExhausted(err) {
		b.log.Warn("descriptor limit reached; raise ulimit -n or lower the connection count")
	}
	if b.breaker.Record(err) != retry.StateOpen {
		return
	}

	if uerr := b.bossLoop.UnregisterFD(b.ln.FD()); uerr != nil {
		b.log.Warn("pause accept: %v", uerr)
		return
	}
	b.paused = true
	b.metrics.AcceptPaused()
	wait := b.breaker.RetryAfter()
	b.log.Warn("accept paused for %v after %d error(s)", wait, b.breaker.Failures())
	b.scheduleResume(wait)
}

// scheduleResume arms a boss loop timer for resumeAccept.
func (b *Bootstrap) scheduleResume(wait time.Duration) {
	id, err := b.bossLoop.Schedule(wait, b.resumeAccept)
	if err != nil {
		b.log.Error("schedule accept resume: %v", err)
		return
	}
	b.resumeID = id
	b.resuming = true
}

func (b *Bootstrap) resumeAccept() {
	b.resuming = false
	if b.ln == nil || !b.paused {
		return
	}
	err := b.breaker.Execute(func() error {
		return b.bossLoop.RegisterFD(b.ln.FD(), b.onAcceptable)
	})
	if err != nil {
		if !ferrors.Is(err, ferrors.ErrCircuitOpen) {
			b.log.Error("resume accept: %v", err)
		}
		b.scheduleResume(b.breaker.RetryAfter())
		return
	}
	b.paused = false
	b.log.Verbose("accept resumed on %s (breaker %s)", b.ln.Addr(), b.breaker.CurrentState())
}
