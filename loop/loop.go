// Package loop provides LoopGroup: a fixed-size pool of single-threaded
// event loops.  Every callback and task scheduled on one Loop runs on that
// loop's goroutine, strictly one after another in FIFO order; different
// loops run in parallel.
//
// A resource (a listening socket, an accepted connection) is pinned to
// one Loop for its lifetime, so state touched only from that loop needs no
// further synchronisation.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-eventloop"

	"github.com/Ahnappi/flash-netty/util"
)

// Loop is one single-threaded execution context of a Group.
type Loop struct {
	index  int
	group  string
	el     *eventloop.Loop
	logger *util.Logger

	gid    atomic.Uint64 // goroutine running el, 0 when stopped
	pinned atomic.Int64
	done   chan struct{}
}

// TimerID identifies a callback scheduled with Schedule.
type TimerID = eventloop.TimerID

func newLoop(group string, index int, logger *util.Logger) (*Loop, error) {
	el, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("create loop %s-%d: %w", group, index, err)
	}
	l := &Loop{
		index: index,
		group: group,
		el:    el,
		done:  make(chan struct{}),
	}
	l.logger = logger.With("loop", l.String())
	return l, nil
}

// run drives the underlying event loop until it terminates.  Tasks run on
// the goroutine that calls Run, which is the one recorded in gid.
func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	l.gid.Store(goroutineID())
	defer l.gid.Store(0)

	l.logger.Debug("loop started")
	l.exited(l.el.Run(ctx))
}

// exited logs why Run returned.  A loop stopped by Shutdown is not an error.
func (l *Loop) exited(err error) {
	if err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		l.logger.Error("loop exited: %v", err)
		return
	}
	l.logger.Debug("loop stopped")
}

// ID is the loop's position in its group.
func (l *Loop) ID() int { return l.index }

func (l *Loop) String() string { return fmt.Sprintf("%s-%d", l.group, l.index) }

// Submit schedules fn to run on the loop.  Tasks submitted to the same
// loop run in submission order and never concurrently.  A panicking task
// is logged and does not stop the loop.
func (l *Loop) Submit(fn func()) error {
	if err := l.el.Submit(l.guard(fn)); err != nil {
		return fmt.Errorf("submit to %s: %w", l, err)
	}
	return nil
}

// Schedule runs fn on the loop once d has elapsed.  As with Submit, a
// panicking callback is logged and does not stop the loop.
func (l *Loop) Schedule(d time.Duration, fn func()) (TimerID, error) {
	id, err := l.el.ScheduleTimer(d, l.guard(fn))
	if err != nil {
		return 0, fmt.Errorf("schedule on %s: %w", l, err)
	}
	return id, nil
}

// CancelTimer stops a callback scheduled with Schedule.  Cancelling one
// that already ran returns an error and has no other effect.
func (l *Loop) CancelTimer(id TimerID) error {
	return l.el.CancelTimer(id)
}

// InLoop reports whether the caller is running on this loop's goroutine.
func (l *Loop) InLoop() bool {
	id := l.gid.Load()
	return id != 0 && id == goroutineID()
}

// Pin records one more resource bound to this loop.
func (l *Loop) Pin() { l.pinned.Add(1) }

// Unpin releases a resource recorded by Pin.
func (l *Loop) Unpin() { l.pinned.Add(-1) }

// Pinned returns the number of resources currently pinned to the loop.
func (l *Loop) Pinned() int64 { return l.pinned.Load() }

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) guard(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("task panicked: %v", r)
			}
		}()
		fn()
	}
}

// goroutineID parses the current goroutine's ID from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
