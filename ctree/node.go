package ctree

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ctxtree/abortsignal"
	"ctxtree/host"
	"ctxtree/internal/listenerlist"
	"ctxtree/internal/reentry"
	"ctxtree/reason"
)

// node is the concrete implementation of Context. mu guards every
// mutable field except cancelled, an atomic flag that Err checks first so
// an already-cancelled node returns its stored reason without walking the
// parent chain — this module runs over real goroutines, so every field
// that can be touched from more than one goroutine is synchronized rather
// than assumed single-threaded.
type node struct {
	h      host.Host
	parent *node
	guard  *reentry.Guard

	mu        sync.Mutex
	cancelled atomic.Bool
	err       reason.Reason
	doneCh    chan struct{}

	listeners *listenerlist.List

	hasDeadline   bool
	deadline      time.Time
	deadlineTimer host.Disposable

	hasValue bool
	key      any
	value    any

	signalOnce sync.Once
	sig        abortsignal.Signal

	parentSub host.Disposable
}

var _ Context = (*node)(nil)

func (n *node) Deadline() (time.Time, bool) {
	n.mu.Lock()
	has := n.hasDeadline
	d := n.deadline
	parent := n.parent
	n.mu.Unlock()
	if has {
		return d, true
	}
	if parent != nil {
		return parent.Deadline()
	}
	return time.Time{}, false
}

func (n *node) Done() <-chan struct{} {
	return n.doneCh
}

// Err is a lazy four-step observation: an already-set reason is
// returned as-is; otherwise the parent is checked first, then this
// node's own deadline, and either check that finds a reason assigns and
// drains before returning it.
func (n *node) Err() error {
	if n.cancelled.Load() {
		n.mu.Lock()
		r := n.err
		n.mu.Unlock()
		return r
	}

	if n.parent != nil {
		if perr := n.parent.Err(); perr != nil {
			pr, _ := perr.(reason.Reason)
			if pr == nil {
				pr = &reason.Cancelled{Cause: perr}
			}
			cancel(n, pr)
			n.mu.Lock()
			r := n.err
			n.mu.Unlock()
			return r
		}
	}

	n.mu.Lock()
	hasDeadline := n.hasDeadline
	deadline := n.deadline
	n.mu.Unlock()
	if hasDeadline && !n.h.Now().Before(deadline) {
		cancel(n, &reason.DeadlineExceeded{})
		n.mu.Lock()
		r := n.err
		n.mu.Unlock()
		return r
	}

	return nil
}

func (n *node) Value(key any) any {
	v, _ := n.Lookup(key)
	return v
}

func (n *node) Lookup(key any) (any, bool) {
	for cur := n; cur != nil; {
		cur.mu.Lock()
		if cur.hasValue && cur.key == key {
			v := cur.value
			cur.mu.Unlock()
			return v, true
		}
		parent := cur.parent
		cur.mu.Unlock()
		cur = parent
	}
	return nil, false
}

// OnDidCancel fires synchronously if already cancelled, otherwise
// registers and returns a Disposable that is safe to call even after
// this context has since cancelled and already drained the
// registration.
func (n *node) OnDidCancel(fn func(reason.Reason)) host.Disposable {
	if err := n.Err(); err != nil {
		r, _ := err.(reason.Reason)
		invokeSafely(n.h, fn, r)
		return host.Noop
	}

	n.mu.Lock()
	if n.err != nil {
		r := n.err
		n.mu.Unlock()
		invokeSafely(n.h, fn, r)
		return host.Noop
	}
	_, remove := n.listeners.Add(listenerlist.Listener(fn))
	n.mu.Unlock()

	return host.NewDisposableFunc(remove)
}

// Signal is the Context→AbortSignal bridge: lazily materialize a
// controller, abort it immediately if already cancelled, otherwise
// abort it the moment OnDidCancel fires.
func (n *node) Signal() abortsignal.Signal {
	n.signalOnce.Do(func() {
		ctl := n.h.NewAbortController()
		n.sig = ctl.Signal()
		if err := n.Err(); err != nil {
			ctl.Abort(err)
			return
		}
		n.OnDidCancel(func(r reason.Reason) {
			ctl.Abort(r)
		})
	})
	return n.sig
}

func invokeSafely(h host.Host, fn func(reason.Reason), r reason.Reason) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				h.OnUncaughtException(e)
				return
			}
			h.OnUncaughtException(listenerPanic{p})
		}
	}()
	fn(r)
}

type listenerPanic struct{ v any }

func (p listenerPanic) Error() string { return fmt.Sprintf("panic in context listener: %v", p.v) }
