package ctree

import (
	"ctxtree/internal/listenerlist"
	"ctxtree/reason"
)

// cancel is idempotent, sets the reason exactly once, drains listeners,
// reports any collected listener failures, and releases the parent
// subscription.
func cancel(n *node, r reason.Reason) {
	n.mu.Lock()
	if n.err != nil {
		n.mu.Unlock()
		return
	}
	n.err = r
	n.cancelled.Store(true)
	close(n.doneCh)

	listeners := n.listeners
	parentSub := n.parentSub
	n.parentSub = nil
	timer := n.deadlineTimer
	n.deadlineTimer = nil
	n.mu.Unlock()

	if timer != nil {
		timer.Dispose()
	}

	notify(n, listeners, r)

	if parentSub != nil {
		parentSub.Dispose()
	}
}

// notify drains listeners and reports whatever they raised. A cascade
// nested deeper than reentry.MaxDepth synchronous frames on one
// goroutine is handed off to n.h.Microtask so the call stack does not
// grow without bound.
func notify(n *node, listeners *listenerlist.List, r reason.Reason) {
	if n.guard.Enter() {
		defer n.guard.Exit()
		report(n.h, listeners.Drain(r))
		return
	}
	n.guard.Exit()
	n.h.Microtask(func() {
		report(n.h, listeners.Drain(r))
	})
}

func report(h hostSink, errs []error) {
	switch len(errs) {
	case 0:
		return
	case 1:
		h.OnUncaughtException(errs[0])
	default:
		h.OnUncaughtException(&reason.Aggregate{Errors: errs})
	}
}

// hostSink is the one method of host.Host that report needs, kept
// narrow so this file does not have to import host just for a type name
// already available through node.h's static type.
type hostSink interface {
	OnUncaughtException(err error)
}
