// Package adapters holds thin external-collaborator wrappers: glue that
// turns an event emitter or a stream's completion hook into a Context,
// consuming nothing beyond ctree.WithCancel's public contract. These
// are deliberately minimal — they exist only so the cancellation tree
// has a clean way to attach to collaborators that were never written
// against this module's types.
package adapters

import (
	"ctxtree/ctree"
	"ctxtree/reason"
)

// Emitter is the minimal "register once, remove listener" event source
// shape FromEmitter needs.
type Emitter interface {
	Once(event string, fn func(args ...any)) (remove func())
}

// ReasonFactory turns an observed event into a cancellation message.
type ReasonFactory func(event string, args ...any) string

// FromEmitter derives a child of parent that cancels the moment any of
// events fires on src, with a Cancelled message built by factory.
func FromEmitter(parent ctree.Context, src Emitter, events []string, factory ReasonFactory) (ctree.Context, ctree.CancelFunc) {
	child, cancelFn := ctree.WithCancel(parent)

	removers := make([]func(), 0, len(events))
	for _, ev := range events {
		event := ev
		remove := src.Once(event, func(args ...any) {
			msg := ""
			if factory != nil {
				msg = factory(event, args...)
			}
			cancelFn(reason.Message(msg))
		})
		removers = append(removers, remove)
	}

	child.OnDidCancel(func(reason.Reason) {
		for _, remove := range removers {
			remove()
		}
	})

	return child, cancelFn
}

// Stream is the minimal "on finish/error" hook shape FromStream needs.
type Stream interface {
	OnFinish(fn func())
	OnError(fn func(err error))
}

// FromStream derives a child of parent that cancels when src completes
// (a plain Cancelled) or errors (a Cancelled carrying err as its
// cause).
func FromStream(parent ctree.Context, src Stream) (ctree.Context, ctree.CancelFunc) {
	child, cancelFn := ctree.WithCancel(parent)

	src.OnFinish(func() {
		cancelFn(nil)
	})
	src.OnError(func(err error) {
		cancelFn(err)
	})

	return child, cancelFn
}
