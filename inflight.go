package querykit

import (
	"context"
	"sync"
)

// Flight is one in-flight transport call shared between the owning caller
// and any number of waiters.
type Flight struct {
	done chan struct{}

	mu      sync.Mutex
	data    any
	retries int
	err     error

	// gen is the cache generation the owner observed at acquisition; a
	// completion whose gen no longer matches the cache is discarded.
	gen uint64
}

// InFlightRegistry deduplicates concurrent calls sharing a key. The first
// caller for a key owns the transport call; later callers wait on the same
// Flight. At most one live transport call exists per key.
type InFlightRegistry struct {
	mu      sync.Mutex
	flights map[string]*Flight
}

// NewInFlightRegistry returns an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{flights: make(map[string]*Flight)}
}

// Acquire returns the Flight for key and whether the caller is its owner.
// The owner must eventually call Complete; gen is recorded only when a new
// flight is created.
func (r *InFlightRegistry) Acquire(key string, gen uint64) (*Flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, exists := r.flights[key]; exists {
		return f, false
	}
	f := &Flight{done: make(chan struct{}), gen: gen}
	r.flights[key] = f
	return f, true
}

// Complete finalizes the flight for key, releases waiters and removes the
// registry entry unconditionally: a repeat request after completion starts a
// fresh transport call.
func (r *InFlightRegistry) Complete(key string, data any, retries int, err error) {
	r.mu.Lock()
	f, exists := r.flights[key]
	delete(r.flights, key)
	r.mu.Unlock()

	if !exists {
		return
	}
	f.mu.Lock()
	f.data = data
	f.retries = retries
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// Len returns the number of live flights.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

// Wait blocks until the owning call completes or ctx cancels. Waiters share
// the owner's result and retry count; they never re-run the retry policy.
func (f *Flight) Wait(ctx context.Context) (any, int, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.data, f.retries, f.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// Generation returns the cache generation stamped at acquisition.
func (f *Flight) Generation() uint64 {
	return f.gen
}
