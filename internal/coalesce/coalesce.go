// Package coalesce implements the Request Coalescer (spec.md §4.6): at
// most one concurrent fetch/transform per fingerprint within a process.
// Concurrent callers for the same key await the same in-flight call and
// each receive an independently consumable (cloned) result.
package coalesce

import (
	"sync"
	"time"
)

// Cloner produces an independent copy of a value of type T, so two
// waiters on the same pending call never share mutable state.
type Cloner[T any] func(T) T

// pending is one in-flight request.
type pending[T any] struct {
	done      chan struct{}
	result    T
	err       error
	timestamp time.Time
}

// Group coalesces concurrent calls keyed by fingerprint. A 30s sweep
// (spec.md §4.6/§5) clears stragglers so a stuck fetch cannot wedge the
// map forever; callers that already started waiting on a since-swept
// entry still receive its result because they hold a direct channel
// reference, not a map lookup.
type Group[T any] struct {
	mu      sync.Mutex
	entries map[string]*pending[T]
	clone   Cloner[T]
	timeout time.Duration

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New builds a Group with the given clone function and coalescing
// timeout (default 30s when timeout <= 0).
func New[T any](clone Cloner[T], timeout time.Duration) *Group[T] {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	g := &Group[T]{
		entries:   make(map[string]*pending[T]),
		clone:     clone,
		timeout:   timeout,
		stopSweep: make(chan struct{}),
	}
	return g
}

// Do executes fn for key if no call is already in flight, otherwise
// awaits the in-flight call and returns a clone of its result. The
// returned didFetch is true only for the caller that actually ran fn —
// useful for tests asserting the at-most-one-fetch invariant.
func (g *Group[T]) Do(key string, fn func() (T, error)) (result T, err error, didFetch bool) {
	g.mu.Lock()
	if p, ok := g.entries[key]; ok {
		g.mu.Unlock()
		<-p.done
		if g.clone != nil {
			return g.clone(p.result), p.err, false
		}
		return p.result, p.err, false
	}

	p := &pending[T]{done: make(chan struct{}), timestamp: time.Now()}
	g.entries[key] = p
	g.mu.Unlock()

	p.result, p.err = fn()
	close(p.done)

	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()

	return p.result, p.err, true
}

// Sweep removes pending entries older than the coalescing timeout. A
// caller already blocked on <-p.done is unaffected by the sweep since
// it holds its own reference to p, not the map entry.
func (g *Group[T]) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-g.timeout)
	for k, p := range g.entries {
		if p.timestamp.Before(cutoff) {
			delete(g.entries, k)
		}
	}
}

// StartSweeper runs Sweep on a ticker until Stop is called.
func (g *Group[T]) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = g.timeout
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				g.Sweep()
			case <-g.stopSweep:
				return
			}
		}
	}()
}

// Stop ends the background sweeper, if started.
func (g *Group[T]) Stop() {
	g.sweepOnce.Do(func() { close(g.stopSweep) })
}

// Inflight reports the number of in-flight entries (test/observability helper).
func (g *Group[T]) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
