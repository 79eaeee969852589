package ctree

import (
	"time"

	"ctxtree/internal/listenerlist"
	"ctxtree/reason"
)

// newChild builds a bare child of p, wiring parent→child cancellation
// propagation: if p is already cancelled, the child is constructed
// already-cancelled, carrying p's reason reference unchanged; otherwise
// the child registers a listener on p, and registers a listener on
// itself that releases that registration the moment it cancels for any
// reason — whichever side cancels first releases the other's
// bookkeeping. The parent reaches the child only through that listener's
// closure, which is dropped from the parent's list once either side
// cancels.
func newChild(p *node) *node {
	n := &node{
		h:         p.h,
		parent:    p,
		guard:     p.guard,
		doneCh:    make(chan struct{}),
		listeners: listenerlist.New(),
	}

	if perr := p.Err(); perr != nil {
		pr, _ := perr.(reason.Reason)
		if pr == nil {
			pr = &reason.Cancelled{Cause: perr}
		}
		n.err = pr
		n.cancelled.Store(true)
		close(n.doneCh)
		return n
	}

	sub := p.OnDidCancel(func(r reason.Reason) {
		cancel(n, r)
	})

	n.mu.Lock()
	if n.err != nil {
		// The parent's listener already fired and cancelled n between
		// registering sub above and taking this lock.
		n.mu.Unlock()
		sub.Dispose()
		return n
	}
	n.parentSub = sub
	n.mu.Unlock()

	n.OnDidCancel(func(reason.Reason) {
		sub.Dispose()
	})

	return n
}

// WithCancel returns a child of parent plus a function that cancels it.
func WithCancel(parent Context) (Context, CancelFunc) {
	p := mustNode(parent)
	n := newChild(p)
	return n, func(cause error) { cancel(n, cancelledReason(cause)) }
}

// WithDeadline returns a child of parent whose effective deadline is
// min(parent's deadline, at), scheduling its own timer only when that
// minimum is strictly earlier than the parent's — when it is not, the
// parent's own cascade will reach this child in time.
func WithDeadline(parent Context, at time.Time) (Context, CancelFunc) {
	p := mustNode(parent)
	n := newChild(p)
	cancelFn := func(cause error) { cancel(n, cancelledReason(cause)) }

	// p.Deadline() walks p's own ancestor chain too, so a grandchild's
	// timer is clamped against whichever ancestor's deadline is
	// soonest, not just its immediate parent's.
	parentDeadline, parentHasDeadline := p.Deadline()

	effective := at
	skipOwnTimer := false
	if parentHasDeadline && !parentDeadline.After(at) {
		effective = parentDeadline
		skipOwnTimer = true
	}

	n.mu.Lock()
	alreadyCancelled := n.err != nil
	if !alreadyCancelled {
		n.hasDeadline = true
		n.deadline = effective
	}
	n.mu.Unlock()

	if alreadyCancelled || skipOwnTimer {
		return n, cancelFn
	}

	now := n.h.Now()
	dur := effective.Sub(now)
	if dur <= 0 {
		cancel(n, &reason.DeadlineExceeded{})
		return n, cancelFn
	}

	timer := n.h.AfterFunc(dur, func() {
		cancel(n, &reason.DeadlineExceeded{})
	})

	n.mu.Lock()
	if n.err == nil {
		n.deadlineTimer = timer
	} else {
		timer.Dispose()
	}
	n.mu.Unlock()

	return n, cancelFn
}

// WithTimeout is WithDeadline(parent, host.Now()+timeout).
func WithTimeout(parent Context, timeout time.Duration) (Context, CancelFunc) {
	p := mustNode(parent)
	return WithDeadline(parent, p.h.Now().Add(timeout))
}

// WithValue returns a child of parent sharing its cancellation, deadline,
// and parent linkage, plus a single key/value binding. A key bound to a
// nil value is still considered present by Lookup.
func WithValue(parent Context, key, value any) Context {
	p := mustNode(parent)
	n := newChild(p)
	n.mu.Lock()
	n.hasValue = true
	n.key = key
	n.value = value
	n.mu.Unlock()
	return n
}
