// Package listenerlist is the ordered, at-most-once-delivery listener
// registry behind Context.OnDidCancel. It is kept as its own package
// because the data structure — an ordered map plus a pool of wrapper
// records — is reused unchanged by every node in a tree.
package listenerlist

import (
	"fmt"
	"sync"

	"github.com/elliotchance/orderedmap"

	"ctxtree/reason"
)

// Listener is a one-shot cancellation callback.
type Listener func(reason.Reason)

// wrapper gives two registrations of the same callback distinct
// identities. Wrappers are pooled — a cancellation cascade touching
// thousands of listeners would otherwise allocate a wrapper per
// listener per cancel.
type wrapper struct {
	id uint64
	fn Listener
}

// List is an ordered, thread-safe collection of pending listeners.
type List struct {
	mu     sync.Mutex
	order  *orderedmap.OrderedMap
	nextID uint64
	pool   sync.Pool
}

// New returns an empty listener list.
func New() *List {
	return &List{
		order: orderedmap.NewOrderedMap(),
		pool: sync.Pool{
			New: func() interface{} { return &wrapper{} },
		},
	}
}

// Add appends fn and returns its id plus a remove function that deletes
// it by identity. Removing after Drain has already removed it is a
// no-op.
func (l *List) Add(fn Listener) (id uint64, remove func()) {
	l.mu.Lock()
	l.nextID++
	id = l.nextID
	w := l.pool.Get().(*wrapper)
	w.id = id
	w.fn = fn
	l.order.Set(id, w)
	l.mu.Unlock()

	return id, func() { l.Remove(id) }
}

// Remove deletes the listener registered under id, if it is still
// present.
func (l *List) Remove(id uint64) {
	l.mu.Lock()
	if v, ok := l.order.Get(id); ok {
		l.order.Delete(id)
		w := v.(*wrapper)
		w.fn = nil
		l.pool.Put(w)
	}
	l.mu.Unlock()
}

// Len reports how many listeners are currently pending.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Drain removes and invokes every pending listener, in registration
// order, recovering any panic so the caller can decide whether to report
// one error or an aggregate. Draining always re-reads the current head
// of the map, so a listener that registers a new listener while Drain is
// running causes that new registration to be delivered too, in the same
// cycle.
func (l *List) Drain(r reason.Reason) []error {
	var errs []error
	for {
		l.mu.Lock()
		keys := l.order.Keys()
		if len(keys) == 0 {
			l.mu.Unlock()
			return errs
		}
		k := keys[0]
		v, _ := l.order.Get(k)
		l.order.Delete(k)
		w := v.(*wrapper)
		fn := w.fn
		w.fn = nil
		l.pool.Put(w)
		l.mu.Unlock()

		if fn == nil {
			continue
		}
		if err := invoke(fn, r); err != nil {
			errs = append(errs, err)
		}
	}
}

// invoke recovers a listener panic and turns it into an error. A panic
// value that already is an error is returned as-is, preserving its type
// and Unwrap chain for the caller's sink; anything else is wrapped in
// panicError for a readable message.
func invoke(fn Listener, r reason.Reason) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = panicError{p}
		}
	}()
	fn(r)
	return nil
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return fmt.Sprintf("%v", p.v) }
