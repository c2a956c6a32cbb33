// Package async provides the handoff object that bridges a worker-pool
// task back to the connection that is waiting to write its response.
package async

import (
	"sync/atomic"

	"github.com/eugener/gandalf/internal/ingress/pool"
)

// Context pairs a request with a response that is set at most once. It is
// generic over the two request envelope shapes (*route.CodeCommand and
// *route.EventWrapper) so the dispatcher and the route table can share
// one completion mechanism instead of duplicating it per path.
//
// net/http only allows the handler goroutine that owns a ResponseWriter
// to write to it, so unlike a fire-and-forget callback, completion here
// also signals a channel the dispatching goroutine can wait on: the
// processor (or the shared Completer pool) may still call Complete from
// any goroutine, but only the original handler goroutine performs the
// actual HTTP write, once Done() unblocks it.
type Context[T any] struct {
	Request T

	response  atomic.Pointer[T]
	completed atomic.Bool
	done      chan struct{}

	// Completer is the pool a processor may use to schedule Complete from
	// outside the dispatch goroutine when it cannot finish inline.
	Completer *pool.Pool
}

// New wraps req in a fresh, incomplete Context.
func New[T any](req T, completer *pool.Pool) *Context[T] {
	return &Context[T]{Request: req, Completer: completer, done: make(chan struct{})}
}

// Complete sets resp as the response if and only if no prior call has
// already done so. It reports whether this call was the winner. Losing
// calls are no-ops: exactly one response is ever visible, satisfying
// at-most-once completion under concurrent callers.
func (c *Context[T]) Complete(resp T) bool {
	if !c.completed.CompareAndSwap(false, true) {
		return false
	}
	c.response.Store(&resp)
	close(c.done)
	return true
}

// Done returns a channel closed exactly once, when Complete first
// succeeds.
func (c *Context[T]) Done() <-chan struct{} {
	return c.done
}

// IsComplete reports whether Complete has been called, without blocking.
func (c *Context[T]) IsComplete() bool {
	return c.completed.Load()
}

// Response returns the stored response and true once complete. Calling
// it before completion returns the zero value and false.
func (c *Context[T]) Response() (T, bool) {
	p := c.response.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
