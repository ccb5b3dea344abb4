package stream

import (
	"log/slog"
	"sync"

	"github.com/taskbeacon/taskbeacon/pkg/logger"
)

// Connection tracks one streaming client from admission to teardown. The
// Manager exclusively owns connection state; transports and listeners only
// interact with it through the guarded setters and Teardown.
type Connection struct {
	id        string
	sourceKey string
	subject   string
	manager   *Manager
	logger    *slog.Logger

	mu            sync.Mutex
	cleanedUp     bool
	stopKeepalive func()
	unsubscribe   func()
}

// setKeepalive attaches the keepalive stop handle. If teardown already ran
// (a narrow race between admission and resource setup), the handle is
// released immediately instead of stored.
func (c *Connection) setKeepalive(stop func()) {
	c.mu.Lock()
	if c.cleanedUp {
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		return
	}
	c.stopKeepalive = stop
	c.mu.Unlock()
}

// setUnsubscribe attaches the bus unsubscribe handle, releasing it
// immediately when teardown already ran.
func (c *Connection) setUnsubscribe(unsub func()) {
	c.mu.Lock()
	if c.cleanedUp {
		c.mu.Unlock()
		if unsub != nil {
			c.safeUnsubscribe(unsub)
		}
		return
	}
	c.unsubscribe = unsub
	c.mu.Unlock()
}

// Teardown releases all connection resources exactly once, no matter how
// many trigger paths fire: client disconnect, write error and server
// shutdown may all race here.
func (c *Connection) Teardown() {
	c.mu.Lock()
	if c.cleanedUp {
		c.mu.Unlock()
		return
	}
	c.cleanedUp = true
	stop := c.stopKeepalive
	unsub := c.unsubscribe
	c.stopKeepalive = nil
	c.unsubscribe = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if unsub != nil {
		c.safeUnsubscribe(unsub)
	}
	c.manager.release(c.sourceKey)

	c.logger.Debug("connection closed",
		logger.Component("stream.manager"),
		logger.ConnectionID(c.id),
		logger.Source(c.sourceKey),
		logger.Subject(c.subject),
	)
}

// safeUnsubscribe never lets an unsubscribe fault abort teardown; the
// admission slot must be released regardless.
func (c *Connection) safeUnsubscribe(unsub func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unsubscribe failed during teardown",
				logger.Component("stream.manager"),
				logger.ConnectionID(c.id),
				slog.Any("panic", r),
			)
		}
	}()
	unsub()
}
