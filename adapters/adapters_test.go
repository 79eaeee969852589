package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxtree/ctree"
	"ctxtree/host/fakehost"
	"ctxtree/reason"
)

type fakeEmitter struct {
	handlers map[string][]func(args ...any)
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{handlers: map[string][]func(args ...any){}}
}

func (e *fakeEmitter) Once(event string, fn func(args ...any)) (remove func()) {
	e.handlers[event] = append(e.handlers[event], fn)
	idx := len(e.handlers[event]) - 1
	return func() { e.handlers[event][idx] = nil }
}

func (e *fakeEmitter) emit(event string, args ...any) {
	for _, fn := range e.handlers[event] {
		if fn != nil {
			fn(args...)
		}
	}
}

func TestFromEmitterCancelsOnEvent(t *testing.T) {
	h := fakehost.New(time.Unix(0, 0))
	r := ctree.Background(h)
	emitter := newFakeEmitter()

	ctx, _ := FromEmitter(r, emitter, []string{"close", "error"}, func(event string, args ...any) string {
		return "source emitted " + event
	})

	emitter.emit("close")

	require.NotNil(t, ctx.Err())
	var cr *reason.Cancelled
	require.True(t, errors.As(ctx.Err(), &cr))
	assert.Equal(t, "source emitted close", cr.Message)
}

type fakeStream struct {
	onFinish func()
	onError  func(err error)
}

func (s *fakeStream) OnFinish(fn func())        { s.onFinish = fn }
func (s *fakeStream) OnError(fn func(err error)) { s.onError = fn }

func TestFromStreamCancelsOnFinish(t *testing.T) {
	h := fakehost.New(time.Unix(0, 0))
	r := ctree.Background(h)
	stream := &fakeStream{}

	ctx, _ := FromStream(r, stream)
	stream.onFinish()

	require.NotNil(t, ctx.Err())
	assert.True(t, reason.IsCancelled(ctx.Err()))
}

func TestFromStreamCancelsOnErrorWithCause(t *testing.T) {
	h := fakehost.New(time.Unix(0, 0))
	r := ctree.Background(h)
	stream := &fakeStream{}

	ctx, _ := FromStream(r, stream)
	cause := errors.New("read failed")
	stream.onError(cause)

	var cr *reason.Cancelled
	require.True(t, errors.As(ctx.Err(), &cr))
	assert.Same(t, cause, cr.Cause)
}
