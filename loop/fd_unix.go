//go:build linux || darwin

package loop

import (
	"fmt"

	"github.com/joeycumines/go-eventloop"
)

// RegisterFD registers fd for read readiness.  onReady runs on this
// loop each time the poller reports fd readable (level-triggered), until
// UnregisterFD is called.
func (l *Loop) RegisterFD(fd int, onReady func()) error {
	cb := l.guard(onReady)
	if err := l.el.RegisterFD(fd, eventloop.EventRead, func(eventloop.IOEvents) { cb() }); err != nil {
		return fmt.Errorf("watch fd %d on %s: %w", fd, l, err)
	}
	return nil
}

// UnregisterFD stops readiness callbacks for fd.  Call it from the loop itself
// before closing fd so no callback observes a closed descriptor.
func (l *Loop) UnregisterFD(fd int) error {
	if err := l.el.UnregisterFD(fd); err != nil {
		return fmt.Errorf("unwatch fd %d on %s: %w", fd, l, err)
	}
	return nil
}
