package fetch

import (
	"context"
	"reflect"
	"sync"

	"github.com/drivelane/datalayer/pkg/logger"
)

// Fetcher runs a producer once per trigger and exposes the resulting State.
// Triggers are construction, a dependency change via SetDeps, and Refetch.
// The producer is held in a mutable slot read at call time, so callers may
// swap it every render without retriggering a fetch and without the fetch
// path ever calling a stale version.
//
// Fetcher performs no caching and no retries; each instance is independent.
type Fetcher[T any] struct {
	mu       sync.Mutex
	producer Producer[T]
	deps     []any
	state    State[T]
	subs     subscribers

	gen         uint64
	cancelFetch context.CancelFunc
	closed      bool
	wg          sync.WaitGroup

	log *logger.Logger
}

// NewFetcher constructs a Fetcher and triggers the initial fetch with the
// given dependency values.
func NewFetcher[T any](producer Producer[T], log *logger.Logger, deps ...any) *Fetcher[T] {
	if log == nil {
		log = logger.NewDefault("fetch")
	}
	f := &Fetcher[T]{
		producer: producer,
		deps:     append([]any(nil), deps...),
		log:      log,
	}
	f.mu.Lock()
	notify := f.trigger()
	f.mu.Unlock()
	notify()
	return f
}

// SetProducer replaces the producer without triggering a fetch. The next
// trigger, whatever its source, calls the replacement.
func (f *Fetcher[T]) SetProducer(producer Producer[T]) {
	f.mu.Lock()
	f.producer = producer
	f.mu.Unlock()
}

// SetDeps updates the dependency values. An order-sensitive deep compare
// decides whether anything changed; if so, one fetch is triggered. Function
// values never compare equal, so passing one as a dependency retriggers on
// every call; prefer the values the function closes over.
func (f *Fetcher[T]) SetDeps(deps ...any) {
	f.mu.Lock()
	if f.closed || depsEqual(f.deps, deps) {
		f.mu.Unlock()
		return
	}
	f.deps = append([]any(nil), deps...)
	notify := f.trigger()
	f.mu.Unlock()
	notify()
}

// Refetch re-runs the producer on demand, independent of dependency changes.
func (f *Fetcher[T]) Refetch() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	notify := f.trigger()
	f.mu.Unlock()
	notify()
}

// State returns a copy of the current fetch state.
func (f *Fetcher[T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Subscribe registers fn to run after every state transition. The returned
// function removes the subscription.
func (f *Fetcher[T]) Subscribe(fn func()) (unsubscribe func()) {
	f.mu.Lock()
	remove := f.subs.add(fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		remove()
		f.mu.Unlock()
	}
}

// Close cancels any in-flight fetch and discards its eventual settlement.
// The Fetcher must not be used afterwards.
func (f *Fetcher[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	cancel := f.cancelFetch
	f.cancelFetch = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
}

// trigger starts a fetch for the current producer. Caller holds f.mu; the
// returned func notifies subscribers and must be called after unlocking.
func (f *Fetcher[T]) trigger() func() {
	f.gen++
	gen := f.gen

	if f.cancelFetch != nil {
		f.cancelFetch()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancelFetch = cancel

	f.state.Loading = true
	f.state.Err = ""
	fns := f.subs.snapshot()

	producer := f.producer
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()

		// Re-read the producer slot at call time so a SetProducer issued
		// after the trigger still takes effect.
		f.mu.Lock()
		if f.closed || gen != f.gen {
			f.mu.Unlock()
			return
		}
		producer = f.producer
		f.mu.Unlock()

		value, err := producer(ctx)

		f.mu.Lock()
		if f.closed || gen != f.gen {
			f.mu.Unlock()
			return
		}
		if err != nil {
			f.state.Data = nil
			f.state.Err = Classify(err)
			f.log.WithError(err).Error("fetch failed")
		} else {
			f.state.Data = &value
			f.state.Err = ""
		}
		f.state.Loading = false
		done := f.subs.snapshot()
		f.mu.Unlock()

		for _, fn := range done {
			fn()
		}
	}()

	return func() {
		for _, fn := range fns {
			fn()
		}
	}
}

// depsEqual compares dependency lists with reflect.DeepEqual so uncomparable
// values (slices, maps) are valid dependencies rather than a panic.
func depsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
