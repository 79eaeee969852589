package ctree

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxtree/host/fakehost"
	"ctxtree/reason"
)

func newFakeHost() *fakehost.Host {
	return fakehost.New(time.Unix(0, 0))
}

// Explicit cancel propagates to grandchildren.
func TestExplicitCancelPropagates(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)
	cc, _ := WithCancel(c)

	cancel(nil)

	require.Same(t, c.Err(), cc.Err())
	assert.True(t, reason.IsContextError(c.Err()))
	assert.True(t, reason.IsCancelled(c.Err()))
}

// A deadline fires without the timer running, via the lazy Err check.
func TestDeadlineFiresWithoutTimer(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, _ := WithTimeout(r, 1*time.Millisecond)

	h.Advance(1*time.Millisecond, true)

	assert.True(t, reason.IsDeadlineExceeded(c.Err()))
}

// A child's deadline is clamped to its parent's.
func TestChildDeadlineClampedToParent(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, _ := WithTimeout(r, 1*time.Millisecond)
	cc, _ := WithTimeout(c, 3*time.Millisecond)

	h.Advance(1*time.Millisecond, false)

	require.Same(t, c.Err(), cc.Err())
	assert.True(t, reason.IsDeadlineExceeded(c.Err()))
}

// Two listeners throwing during the same cancel produce one Aggregate
// delivered to the host.
func TestAggregateOnMultipleListenerPanics(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)

	c.OnDidCancel(func(reason.Reason) { panic(errors.New("first")) })
	c.OnDidCancel(func(reason.Reason) { panic(errors.New("second")) })

	cancel(nil)

	uncaught := h.UncaughtExceptions()
	require.Len(t, uncaught, 1)
	var agg *reason.Aggregate
	require.True(t, errors.As(uncaught[0], &agg))
	assert.Len(t, agg.Errors, 2)
}

// Value shadowing down the chain.
func TestValueShadowing(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c := WithValue(r, "k", "v")
	g := WithValue(c, "k", "V")

	_, rootHasKey := r.Lookup("k")
	assert.False(t, rootHasKey)

	cv, ok := c.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "v", cv)

	gv, ok := g.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "V", gv)
}

// Round trip through the abort-signal bridge.
func TestAbortSignalRoundTrip(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	ctl := h.NewAbortController()

	ctx, _ := WithAbortSignal(r, ctl.Signal())
	var observed reason.Reason
	ctx.OnDidCancel(func(rr reason.Reason) { observed = rr })

	ctl.Abort(errors.New("stop"))

	// The bridge dispatches via a goroutine; give it a beat to land, the
	// way any channel-bridged adapter test must.
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, time.Millisecond)

	assert.NotNil(t, observed)
	assert.True(t, ctl.Signal().Aborted())
}

// Err is idempotent and stable across repeated cancels.
func TestErrIdempotentAcrossCalls(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)

	cancel(nil)
	first := c.Err()
	cancel(errors.New("ignored, already cancelled"))
	second := c.Err()

	require.Same(t, first, second)
}

// Value lookup through a three-generation chain.
func TestValueLookupThreeGenerations(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	p := WithValue(r, "k", "v")
	c, _ := WithCancel(p)
	g, _ := WithCancel(c)

	gv, ok := g.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "v", gv)
}

// Presence is distinct from a bound-but-empty value.
func TestHasValueTrueForNilBoundValue(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c := WithValue(r, "k", nil)

	v, ok := c.Lookup("k")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestBackgroundIsMemoizedPerHost(t *testing.T) {
	h := newFakeHost()
	a := Background(h)
	b := Background(h)
	assert.Same(t, a, b)
}

func TestRootHasNoDeadlineAndNoParent(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	_, ok := r.Deadline()
	assert.False(t, ok)
	assert.Nil(t, r.(*node).parent)
	assert.Nil(t, r.Err())
}

func TestIsContext(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	assert.True(t, IsContext(r))
	assert.False(t, IsContext("not a context"))
}

func TestConstructorPanicsOnInvalidParent(t *testing.T) {
	assert.Panics(t, func() {
		// A Context implementation that did not come from this package.
		WithCancel(struct{ Context }{})
	})
}

func TestOnDidCancelFiresSynchronouslyWhenAlreadyCancelled(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)
	cancel(nil)

	fired := false
	d := c.OnDidCancel(func(reason.Reason) { fired = true })
	assert.True(t, fired)
	assert.NotPanics(t, d.Dispose)
}

func TestDisposeBeforeCancelPreventsInvocation(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)

	fired := false
	d := c.OnDidCancel(func(reason.Reason) { fired = true })
	d.Dispose()
	cancel(nil)

	assert.False(t, fired)
}

func TestCancelWithMessage(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)
	cancel(reason.Message("shutting down"))

	var cr *reason.Cancelled
	require.True(t, errors.As(c.Err(), &cr))
	assert.Equal(t, "shutting down", cr.Message)
}

func TestCancelWithCause(t *testing.T) {
	h := newFakeHost()
	r := Background(h)
	c, cancel := WithCancel(r)
	cause := errors.New("stream closed")
	cancel(cause)

	var cr *reason.Cancelled
	require.True(t, errors.As(c.Err(), &cr))
	assert.Same(t, cause, cr.Cause)
}
