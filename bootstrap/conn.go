package bootstrap

import (
	"net"
	"sync"

	"github.com/Ahnappi/flash-netty/attr"
	"github.com/Ahnappi/flash-netty/loop"
)

// Conn is an accepted connection.  Its attribute store is a private copy
// of the listener's child template.
type Conn struct {
	net.Conn

	attrs  *attr.Store
	parent *attr.Store
	loop   *loop.Loop
	owner  *Bootstrap

	closeOnce sync.Once
	closeErr  error
}

// Attrs returns the connection's own attribute store.
func (c *Conn) Attrs() *attr.Store { return c.attrs }

// Parent returns the listener's attribute store.
func (c *Conn) Parent() *attr.Store { return c.parent }

// Loop returns the worker loop the connection is pinned to.
func (c *Conn) Loop() *loop.Loop { return c.loop }

// Close closes the connection and releases its loop pin.  Safe to call
// more than once and from any goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		c.loop.Unpin()
		if c.owner != nil {
			c.owner.untrack(c)
		}
	})
	return c.closeErr
}
