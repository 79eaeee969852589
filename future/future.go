// Package future is an awaitable bridge: a way to treat a Context's
// resolution as an asynchronous value, either as a "resolves with the
// reason, never rejects" future (Await) or as a "rejects with the
// reason" thenable (AwaitErr). Both are thin wrappers over
// Context.OnDidCancel, short-circuiting when Err() is already set.
package future

import (
	"ctxtree/ctree"
	"ctxtree/reason"
)

// Await blocks until ctx cancels and returns its reason. It never
// "rejects" — there is nothing to return but the reason itself.
func Await(ctx ctree.Context) reason.Reason {
	if err := ctx.Err(); err != nil {
		r, _ := err.(reason.Reason)
		return r
	}

	result := make(chan reason.Reason, 1)
	ctx.OnDidCancel(func(r reason.Reason) {
		result <- r
	})
	return <-result
}

// AwaitErr blocks until ctx cancels, or stop is closed, whichever comes
// first. It returns ctx's reason as a plain error — a thenable-style
// rejection — or nil if stop fired first. Passing a nil stop channel
// makes AwaitErr equivalent to Await wrapped as an error.
func AwaitErr(ctx ctree.Context, stop <-chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan reason.Reason, 1)
	disposable := ctx.OnDidCancel(func(r reason.Reason) {
		result <- r
	})

	select {
	case r := <-result:
		return r
	case <-stop:
		disposable.Dispose()
		return nil
	}
}
