// Package reason defines the tagged cancellation-reason values a Context
// can carry: Cancelled, DeadlineExceeded, and Aggregate. Reasons are
// values, not panics — they are stored on a context, handed to listeners,
// and compared by identity, the same way context.Canceled and
// context.DeadlineExceeded work in the standard library, except these
// carry enough structure to distinguish "why".
package reason

import (
	"errors"
	"strings"
)

// Reason is any of Cancelled, DeadlineExceeded, or Aggregate. It is an
// error so it can flow through ordinary error-handling code, plus an
// unexported marker so that only this package's three types satisfy it.
type Reason interface {
	error
	isContextReason()
}

// Cancelled is produced by an explicit cancel call. Message and Cause are
// both optional; Cause, when present, is preserved unchanged and
// surfaced through Unwrap.
type Cancelled struct {
	Message string
	Cause   error
}

func (c *Cancelled) Error() string {
	if c.Message != "" {
		return "CancelledError: " + c.Message
	}
	if c.Cause != nil {
		return "CancelledError: " + c.Cause.Error()
	}
	return "CancelledError"
}

func (c *Cancelled) Unwrap() error { return c.Cause }

func (*Cancelled) isContextReason() {}

// DeadlineExceeded is produced when a context's deadline has passed,
// either because its timer fired or because a lazy check in Err observed
// it first.
type DeadlineExceeded struct{}

func (*DeadlineExceeded) Error() string { return "DeadlineExceededError" }

func (*DeadlineExceeded) isContextReason() {}

// Aggregate wraps more than one error raised by listeners during a single
// notify cycle. Errors is never empty.
type Aggregate struct {
	Errors []error
}

func (a *Aggregate) Error() string {
	if len(a.Errors) == 1 {
		return a.Errors[0].Error()
	}
	parts := make([]string, len(a.Errors))
	for i, e := range a.Errors {
		parts[i] = e.Error()
	}
	return "AggregateError: " + strings.Join(parts, "; ")
}

func (*Aggregate) isContextReason() {}

// MessageCause marks a cancellation cause as a plain human-readable
// message rather than a wrapped underlying error, so a CancelFunc can
// tell the two apart: Message("timed out waiting for X") sets
// Cancelled.Message, while any other error sets Cancelled.Cause.
type MessageCause string

func (m MessageCause) Error() string { return string(m) }

// Message wraps s as a MessageCause for use as a CancelFunc argument.
func Message(s string) error { return MessageCause(s) }

// IsCancelled reports whether err is, or wraps, a *Cancelled.
func IsCancelled(err error) bool {
	var c *Cancelled
	return errors.As(err, &c)
}

// IsDeadlineExceeded reports whether err is, or wraps, a *DeadlineExceeded.
func IsDeadlineExceeded(err error) bool {
	var d *DeadlineExceeded
	return errors.As(err, &d)
}

// IsContextError reports whether err is a context-shaped reason: either
// Cancelled or DeadlineExceeded. Aggregate is deliberately excluded — it
// describes a listener failure, not a cancellation cause.
func IsContextError(err error) bool {
	return IsCancelled(err) || IsDeadlineExceeded(err)
}
