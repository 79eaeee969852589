package ctree

import (
	"ctxtree/abortsignal"
	"ctxtree/reason"
)

// FromContext is the Context→AbortSignal bridge, exposed as a free
// function alongside Context.Signal for callers who received a bare
// Context and want the platform-signal view without an extra type
// assertion. It is kept in this package, rather than abortsignal, to
// avoid an import cycle — abortsignal has no notion of Context, and
// ctree already depends on abortsignal for Context.Signal's return
// type.
func FromContext(ctx Context) abortsignal.Signal {
	return ctx.Signal()
}

// WithAbortSignal is the inverse bridge: AbortSignal→Context. The
// returned context cancels the moment sig aborts, carrying sig's abort
// reason as the Cancelled cause, and detaches its listener on sig once
// it cancels for any other reason.
func WithAbortSignal(parent Context, sig abortsignal.Signal) (Context, CancelFunc) {
	child, cancelFn := WithCancel(parent)
	n := mustNode(child)

	if sig.Aborted() {
		cancel(n, cancelledReason(sig.Reason()))
		return child, cancelFn
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-sig.C():
			cancel(n, cancelledReason(sig.Reason()))
		case <-stop:
		}
	}()
	n.OnDidCancel(func(reason.Reason) {
		close(stop)
	})

	return child, cancelFn
}
