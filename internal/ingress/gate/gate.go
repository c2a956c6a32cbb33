// Package gate implements the ingress connection gate (C1): it caps
// concurrent live connections and enforces an idle timeout, in the
// idiom of net/http's ConnState hook standing in for a Netty pipeline
// stage.
package gate

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// MaxConnections is the default concurrent-connection ceiling.
const MaxConnections = 20000

// Listener wraps a net.Listener, rejecting connections once live exceeds
// its configured maximum and wrapping every accepted connection with an
// idle-timeout enforcer.
type Listener struct {
	net.Listener

	max         int64
	idleTimeout time.Duration
	live        atomic.Int64
}

// New wraps inner. max <= 0 falls back to MaxConnections; idleTimeout <=
// 0 disables idle-timeout enforcement.
func New(inner net.Listener, max int64, idleTimeout time.Duration) *Listener {
	if max <= 0 {
		max = MaxConnections
	}
	return &Listener{Listener: inner, max: max, idleTimeout: idleTimeout}
}

// Live returns the current live connection count.
func (l *Listener) Live() int64 { return l.live.Load() }

// Accept increments the live counter before returning the connection
// (invariant C1: increment before any other work). If the post-increment
// value exceeds max, the connection is closed immediately without
// decrementing — the wrapped conn's Close, invoked exactly once via a
// sync.Once guard, performs the matching decrement even on this
// reject-immediately path.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	n := l.live.Add(1)
	wrapped := &gatedConn{Conn: conn, live: &l.live, idleTimeout: l.idleTimeout}

	if n > l.max {
		slog.Info("gate: connection rejected, limit exceeded", "live", n, "max", l.max)
		_ = wrapped.Close()
		return nil, errRejected{}
	}

	wrapped.refreshDeadline()
	return wrapped, nil
}

type errRejected struct{}

func (errRejected) Error() string   { return "gate: connection limit exceeded" }
func (errRejected) Timeout() bool   { return false }
func (errRejected) Temporary() bool { return true }

// gatedConn decrements the live counter exactly once on Close and
// refreshes an idle deadline on every read/write, the net/http idiom for
// Netty's ALL_IDLE event.
type gatedConn struct {
	net.Conn
	live        *atomic.Int64
	idleTimeout time.Duration
	closeOnce   sync.Once
}

func (c *gatedConn) refreshDeadline() {
	if c.idleTimeout <= 0 {
		return
	}
	_ = c.Conn.SetDeadline(time.Now().Add(c.idleTimeout))
}

func (c *gatedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err == nil {
		c.refreshDeadline()
	}
	return n, err
}

func (c *gatedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err == nil {
		c.refreshDeadline()
	}
	return n, err
}

func (c *gatedConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
		c.live.Add(-1)
	})
	return err
}
