// Package ctree is the context tree engine: the lifecycle of linked
// contexts, propagation of cancellation from parent to child, the
// deadline/timer machinery, listener registration and firing, value
// lookup along the ancestor chain, and reason aggregation when more than
// one listener fails.
//
// ctree's Context is intentionally shaped like the standard library's
// context.Context — Deadline, Done, Err, Value — because that is the
// interface this whole module is modelled on; the difference is that
// every operation here goes through an injected host.Host instead of
// calling time.Now/time.AfterFunc directly, and Err is computed lazily
// against both the parent chain and the deadline on every read, not
// just observed through a channel close.
package ctree

import (
	"fmt"
	"time"

	"ctxtree/abortsignal"
	"ctxtree/host"
	"ctxtree/internal/listenerlist"
	"ctxtree/internal/reentry"
	"ctxtree/internal/roots"
	"ctxtree/reason"
)

// Context is an immutable handle for a unit of ongoing work.
type Context interface {
	// Deadline reports this context's effective deadline, inherited from
	// the nearest ancestor that has one if this node did not request its
	// own.
	Deadline() (deadline time.Time, ok bool)

	// Done returns a channel that is closed once this context has a
	// cancellation reason. Closing only happens as a side effect of Err
	// or of an explicit/timer-driven cancel — it is not itself a polling
	// mechanism for deadlines that have not yet been observed.
	Done() <-chan struct{}

	// Err returns this context's cancellation reason, or nil if it has
	// none yet. Reading Err can itself cause this context to become
	// cancelled, by discovering a parent cancellation or an elapsed
	// deadline.
	Err() error

	// Value returns the value bound to key by this context or its
	// nearest ancestor, or nil if none binds it. Kept
	// signature-compatible with context.Context.Value.
	Value(key any) any

	// Lookup is Value plus a presence bit: a key bound to nil is still
	// "present."
	Lookup(key any) (value any, ok bool)

	// OnDidCancel registers a one-shot listener and returns a Disposable
	// that unregisters it.
	OnDidCancel(fn func(reason.Reason)) host.Disposable

	// Signal lazily materializes a platform abort signal that aborts
	// when this context cancels.
	Signal() abortsignal.Signal
}

// CancelFunc sets a context's cancellation reason. A nil cause produces
// a bare Cancelled{}; reason.Message(s) produces Cancelled{Message: s};
// any other error is preserved as Cancelled{Cause: cause}. CancelFunc is
// idempotent.
type CancelFunc func(cause error)

// InvalidContextError is panicked by any constructor given a parent that
// does not satisfy IsContext.
type InvalidContextError struct {
	Got any
}

func (e *InvalidContextError) Error() string {
	return fmt.Sprintf("ctree: %#v is not a valid Context", e.Got)
}

var registry = roots.New()

// Background returns the singleton root Context for h, creating it on
// first call and memoizing it thereafter.
func Background(h host.Host) Context {
	if h == nil {
		panic(&InvalidContextError{Got: h})
	}
	v := registry.GetOrCreate(h, func() any {
		return &node{
			h:         h,
			doneCh:    make(chan struct{}),
			listeners: listenerlist.New(),
			guard:     reentry.NewGuard(),
		}
	})
	return v.(*node)
}

// IsContext reports whether x is a Context produced by this package.
func IsContext(x any) bool {
	_, ok := x.(*node)
	return ok
}

func mustNode(c Context) *node {
	n, ok := c.(*node)
	if !ok {
		panic(&InvalidContextError{Got: c})
	}
	return n
}

func cancelledReason(cause error) *reason.Cancelled {
	if cause == nil {
		return &reason.Cancelled{}
	}
	if msg, ok := cause.(reason.MessageCause); ok {
		return &reason.Cancelled{Message: string(msg)}
	}
	return &reason.Cancelled{Cause: cause}
}
