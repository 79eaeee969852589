package host

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"ctxtree/abortsignal"
)

// defaultMicrotaskConcurrency bounds how many Microtask callbacks a
// System will run at once. Unbounded dispatch would let a cancellation
// cascade that fans out into thousands of children spawn thousands of
// goroutines in the same instant; the semaphore turns that into a queue
// instead.
const defaultMicrotaskConcurrency = 64

// System is the production Host: real time, real timers, a
// semaphore-bounded goroutine pool for microtasks, and a zap-backed
// uncaught-exception sink.
type System struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
}

// Option customizes a System at construction time, following the usual
// Go functional-options shape.
type Option func(*System)

// WithLogger overrides the zap.Logger used for uncaught exceptions and
// host diagnostics. The default is zap.NewProduction() (falling back to
// zap.NewNop() if that construction itself fails).
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithMicrotaskConcurrency overrides how many Microtask callbacks may run
// concurrently. n <= 0 is treated as defaultMicrotaskConcurrency.
func WithMicrotaskConcurrency(n int) Option {
	return func(s *System) {
		if n <= 0 {
			n = defaultMicrotaskConcurrency
		}
		s.sem = semaphore.NewWeighted(int64(n))
	}
}

// NewSystem builds the default Host implementation.
func NewSystem(opts ...Option) *System {
	s := &System{
		sem: semaphore.NewWeighted(defaultMicrotaskConcurrency),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		s.logger = l
	}
	return s
}

func (s *System) Now() time.Time { return time.Now() }

func (s *System) AfterFunc(d time.Duration, fn func()) Disposable {
	t := time.AfterFunc(d, fn)
	return NewDisposableFunc(func() { t.Stop() })
}

func (s *System) Microtask(fn func()) Disposable {
	var mu sync.Mutex
	disposed := false

	go func() {
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		mu.Lock()
		skip := disposed
		mu.Unlock()
		if !skip {
			fn()
		}
	}()

	return NewDisposableFunc(func() {
		mu.Lock()
		disposed = true
		mu.Unlock()
	})
}

func (s *System) NewAbortController() abortsignal.Controller {
	return abortsignal.NewController()
}

func (s *System) OnUncaughtException(err error) {
	if err == nil {
		return
	}
	s.logger.Warn("uncaught exception from context listener", zap.Error(err))
}

var _ Host = (*System)(nil)
