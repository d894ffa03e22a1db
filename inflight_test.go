package querykit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInFlightOwnerAndWaiters(t *testing.T) {
	r := NewInFlightRegistry()

	f1, owner1 := r.Acquire("k", 0)
	if !owner1 {
		t.Fatal("first caller must own the flight")
	}
	f2, owner2 := r.Acquire("k", 0)
	if owner2 {
		t.Fatal("second caller must not own the flight")
	}
	if f1 != f2 {
		t.Fatal("callers must share one flight per key")
	}

	go r.Complete("k", "result", 2, nil)

	data, retries, err := f2.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != "result" || retries != 2 {
		t.Errorf("waiter got data=%v retries=%d", data, retries)
	}
}

func TestInFlightRemovedUnconditionally(t *testing.T) {
	r := NewInFlightRegistry()

	_, _ = r.Acquire("k", 0)
	r.Complete("k", nil, 0, errors.New("boom"))

	if r.Len() != 0 {
		t.Fatal("entry must be removed on completion, success or failure")
	}

	// A new request with the same key immediately after completion starts
	// a fresh call.
	_, owner := r.Acquire("k", 0)
	if !owner {
		t.Error("post-completion caller must become a new owner")
	}
}

func TestInFlightErrorShared(t *testing.T) {
	r := NewInFlightRegistry()
	f, _ := r.Acquire("k", 0)

	want := errors.New("transport down")
	r.Complete("k", nil, 1, want)

	_, _, err := f.Wait(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("waiter must see the owner's error, got %v", err)
	}
}

func TestInFlightWaitContextCancel(t *testing.T) {
	r := NewInFlightRegistry()
	f, _ := r.Acquire("k", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := f.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestInFlightManyWaiters(t *testing.T) {
	r := NewInFlightRegistry()
	_, _ = r.Acquire("k", 7)

	const waiters = 16
	var wg sync.WaitGroup
	results := make([]any, waiters)
	for i := 0; i < waiters; i++ {
		f, owner := r.Acquire("k", 0)
		if owner {
			t.Fatal("no waiter may become owner while the flight lives")
		}
		wg.Add(1)
		go func(i int, f *Flight) {
			defer wg.Done()
			results[i], _, _ = f.Wait(context.Background())
		}(i, f)
	}

	r.Complete("k", "shared", 0, nil)
	wg.Wait()

	for i, got := range results {
		if got != "shared" {
			t.Errorf("waiter %d got %v", i, got)
		}
	}
}

func TestFlightGenerationStamp(t *testing.T) {
	r := NewInFlightRegistry()
	f, _ := r.Acquire("k", 42)
	if f.Generation() != 42 {
		t.Errorf("generation stamp lost: %d", f.Generation())
	}

	// Waiters do not restamp.
	f2, _ := r.Acquire("k", 99)
	if f2.Generation() != 42 {
		t.Errorf("waiter must not restamp the generation: %d", f2.Generation())
	}
}
