// Package fakehost is the deterministic Host double used throughout this
// module's own test suite, and meant for any caller who wants
// reproducible deadline behavior in their own tests — the same role
// played by a manually-advanced clock in other test harnesses, adapted
// here to also drive microtasks and collect uncaught exceptions.
package fakehost

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"ctxtree/abortsignal"
	"ctxtree/host"
)

// pendingTimer is one entry in the fake clock's queue of scheduled
// one-shot callbacks.
type pendingTimer struct {
	at       time.Time
	fn       func()
	disposed bool
	fired    bool
	mu       *sync.Mutex
}

// Host is a Host implementation whose clock only moves when Advance is
// called. Pending timers are kept in a github.com/eapache/queue.Queue in
// scheduling order; Advance walks it front to back and fires everything
// due.
type Host struct {
	mu         sync.Mutex
	now        time.Time
	timers     *queue.Queue
	microtasks *queue.Queue
	uncaught   []error
}

// New returns a fake Host whose clock starts at t0.
func New(t0 time.Time) *Host {
	return &Host{
		now:        t0,
		timers:     queue.New(),
		microtasks: queue.New(),
	}
}

func (h *Host) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *Host) AfterFunc(d time.Duration, fn func()) host.Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()
	pt := &pendingTimer{at: h.now.Add(d), fn: fn, mu: &h.mu}
	h.timers.Add(pt)
	return host.NewDisposableFunc(func() {
		pt.mu.Lock()
		pt.disposed = true
		pt.mu.Unlock()
	})
}

// Microtask, on the fake host, queues fn for the next Advance or
// FlushMicrotasks call rather than running it on a goroutine — tests stay
// single-threaded and ordering stays deterministic.
func (h *Host) Microtask(fn func()) host.Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()
	pt := &pendingTimer{fn: fn, mu: &h.mu}
	h.microtasks.Add(pt)
	return host.NewDisposableFunc(func() {
		pt.mu.Lock()
		pt.disposed = true
		pt.mu.Unlock()
	})
}

func (h *Host) NewAbortController() abortsignal.Controller {
	return abortsignal.NewController()
}

func (h *Host) OnUncaughtException(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	h.uncaught = append(h.uncaught, err)
	h.mu.Unlock()
}

// UncaughtExceptions returns every error handed to OnUncaughtException so
// far, in order.
func (h *Host) UncaughtExceptions() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.uncaught))
	copy(out, h.uncaught)
	return out
}

// Advance moves the fake clock forward by d. Unless suppressTimers is
// true, every pending AfterFunc callback whose deadline has passed fires,
// in scheduling order, before Advance returns. FlushMicrotasks always
// runs regardless of suppressTimers — a host's timer queue and its
// microtask queue are independent.
func (h *Host) Advance(d time.Duration, suppressTimers bool) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()

	if !suppressTimers {
		h.drainTimers()
	}
	h.FlushMicrotasks()
}

func (h *Host) drainTimers() {
	for {
		h.mu.Lock()
		if h.timers.Length() == 0 {
			h.mu.Unlock()
			return
		}
		pt := h.timers.Peek().(*pendingTimer)
		if pt.disposed || pt.fired {
			h.timers.Remove()
			h.mu.Unlock()
			continue
		}
		for i := 1; pt.at.After(h.now) && i < h.timers.Length(); i++ {
			if next := h.timers.Get(i).(*pendingTimer); !next.disposed && !next.fired {
				pt = next
			}
		}
		if pt.at.After(h.now) {
			h.mu.Unlock()
			return
		}
		// A fired timer is dropped once it reaches the head of the queue.
		pt.fired = true
		h.mu.Unlock()
		pt.fn()
	}
}

// FlushMicrotasks runs every microtask queued so far, including ones
// queued by a microtask that is itself running, until the queue is empty.
func (h *Host) FlushMicrotasks() {
	for {
		h.mu.Lock()
		if h.microtasks.Length() == 0 {
			h.mu.Unlock()
			return
		}
		pt := h.microtasks.Peek().(*pendingTimer)
		h.microtasks.Remove()
		skip := pt.disposed
		h.mu.Unlock()
		if !skip {
			pt.fn()
		}
	}
}

var _ host.Host = (*Host)(nil)
