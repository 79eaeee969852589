// Package roots memoizes the singleton root context per Host: one root
// per Host, created on first Background(h) call and reused thereafter.
// Go has no weak map, so this is an explicit registry instead — a plain
// map plus the locking and dedupe needed to make concurrent first-time
// creation safe.
package roots

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is safe for concurrent use. Reads are far more common than
// writes — a tree's root is created once and then read on every
// Background call for that Host — so lookups take a read lock, and a
// singleflight.Group dedupes concurrent first-time creations for the
// same host so two goroutines racing Background(h) for a brand new host
// never build two different roots.
type Registry struct {
	mu sync.RWMutex
	m  map[any]any
	sf singleflight.Group
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[any]any)}
}

// GetOrCreate returns the memoized value for key, calling create at most
// once per key even under concurrent callers.
func (r *Registry) GetOrCreate(key any, create func() any) any {
	r.mu.RLock()
	if v, ok := r.m[key]; ok {
		r.mu.RUnlock()
		return v
	}
	r.mu.RUnlock()

	sfKey := fmt.Sprintf("%p", key)
	v, _, _ := r.sf.Do(sfKey, func() (interface{}, error) {
		r.mu.RLock()
		if v, ok := r.m[key]; ok {
			r.mu.RUnlock()
			return v, nil
		}
		r.mu.RUnlock()

		created := create()
		r.mu.Lock()
		r.m[key] = created
		r.mu.Unlock()
		return created, nil
	})
	return v
}
