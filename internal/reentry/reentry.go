// Package reentry bounds how deeply a single goroutine may recurse
// through nested synchronous cancellation notifications. A cancellation
// cascading through a deep parent/child chain, where each child's
// propagation listener calls cancel on the next child synchronously,
// would otherwise grow the call stack one frame per tree level; past
// MaxDepth, the caller is expected to hand the remaining fan-out to
// Host.Microtask instead of recursing further.
//
// Depth is tracked per goroutine, identified via goid.
package reentry

import (
	"sync"

	"github.com/petermattis/goid"
)

// MaxDepth is how many nested synchronous notify cycles a single
// goroutine may run before Guard.Enter reports that the caller should
// defer instead.
const MaxDepth = 32

// Guard is shared by every node in one context tree, so depth is tracked
// across the whole cascade rather than reset at each node.
type Guard struct {
	mu    sync.Mutex
	depth map[int64]int
}

// NewGuard returns a fresh, empty Guard.
func NewGuard() *Guard {
	return &Guard{depth: make(map[int64]int)}
}

// Enter records one more level of nesting on the calling goroutine and
// reports whether the caller may proceed synchronously. Every call to
// Enter, regardless of its result, must be paired with exactly one call
// to Exit.
func (g *Guard) Enter() (synchronous bool) {
	id := goid.Get()
	g.mu.Lock()
	d := g.depth[id] + 1
	g.depth[id] = d
	g.mu.Unlock()
	return d <= MaxDepth
}

// Exit undoes one Enter on the calling goroutine.
func (g *Guard) Exit() {
	id := goid.Get()
	g.mu.Lock()
	d := g.depth[id] - 1
	if d <= 0 {
		delete(g.depth, id)
	} else {
		g.depth[id] = d
	}
	g.mu.Unlock()
}
