package querykit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testMutationConfig(prefixes ...string) MutationConfig {
	cfg := DefaultMutationConfig()
	cfg.InvalidateKeyPrefixes = prefixes
	cfg.Timeout = time.Second
	return cfg
}

func TestMutateSuccessReturnsData(t *testing.T) {
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		if !req.Mutation {
			t.Error("mutation request must carry the Mutation flag")
		}
		if req.Body != "payload" {
			t.Errorf("body not forwarded: %v", req.Body)
		}
		return &Response{Data: "created", Status: 201}, nil
	})
	e := New(WithTransport(ct))
	defer e.Dispose()

	data, err := e.Mutate(context.Background(), "users", "payload", testMutationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != "created" {
		t.Errorf("expected mutation result data, got %v", data)
	}
	if ct.totalCalls() != 1 {
		t.Errorf("expected one call, got %d", ct.totalCalls())
	}
}

func TestMutateSingleAttempt(t *testing.T) {
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, errors.New("write failed")
	})
	e := New(WithTransport(ct))
	defer e.Dispose()

	_, err := e.Mutate(context.Background(), "users", nil, testMutationConfig())
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Type != ErrorTypeTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if ct.totalCalls() != 1 {
		t.Errorf("mutations are never retried, got %d calls", ct.totalCalls())
	}
}

func TestMutateOptimisticInvalidationPrecedesTransport(t *testing.T) {
	var e *Engine
	release := make(chan struct{})
	staleAtCall := make(chan bool, 1)

	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		if !req.Mutation {
			return &Response{Data: "list"}, nil
		}
		// Observe cache staleness from inside the outstanding mutation.
		key := NewRequestKey("users/list", nil)
		_, stale, _ := e.cache.Get(key)
		staleAtCall <- stale
		<-release
		return &Response{Data: "written"}, nil
	})
	e = New(WithTransport(ct))
	defer e.Dispose()

	cfg := testQueryConfig()
	cfg.TTL = time.Hour
	if _, err := e.Query(context.Background(), "users/list", nil, cfg); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Mutate(context.Background(), "users/create", nil, testMutationConfig("users"))
		done <- err
	}()

	select {
	case stale := <-staleAtCall:
		if !stale {
			t.Error("optimistic invalidation must run before the transport call")
		}
	case <-time.After(time.Second):
		t.Fatal("mutation never reached the transport")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("mutation failed: %v", err)
	}
}

func TestMutateRollbackReinvalidates(t *testing.T) {
	var mutations int32
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Mutation {
			atomic.AddInt32(&mutations, 1)
			return nil, errors.New("rejected")
		}
		return &Response{Data: "list"}, nil
	})
	e := New(WithTransport(ct))
	defer e.Dispose()

	qcfg := testQueryConfig()
	qcfg.TTL = time.Hour
	if _, err := e.Query(context.Background(), "users/list", nil, qcfg); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Mutate(context.Background(), "users/create", nil, testMutationConfig("users")); err == nil {
		t.Fatal("expected mutation failure")
	}

	key := NewRequestKey("users/list", nil)
	if _, stale, ok := e.cache.Get(key); !ok || !stale {
		t.Error("rollback must leave the affected keys stale for a forced refetch")
	}

	// The next read reconciles by refetching.
	if _, err := e.Query(context.Background(), "users/list", nil, qcfg); err != nil {
		t.Fatal(err)
	}
	if got := ct.callsFor("users/list"); got != 2 {
		t.Errorf("expected forced refetch after rollback, got %d calls", got)
	}
}

func TestMutateNoRollbackLeavesOptimisticMark(t *testing.T) {
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Mutation {
			return nil, errors.New("rejected")
		}
		return &Response{Data: "list"}, nil
	})
	e := New(WithTransport(ct))
	defer e.Dispose()

	qcfg := testQueryConfig()
	qcfg.TTL = time.Hour
	if _, err := e.Query(context.Background(), "users/list", nil, qcfg); err != nil {
		t.Fatal(err)
	}

	cfg := testMutationConfig("users")
	cfg.OptimisticUpdate = false
	cfg.RollbackOnError = false

	if _, err := e.Mutate(context.Background(), "users/create", nil, cfg); err == nil {
		t.Fatal("expected mutation failure")
	}

	key := NewRequestKey("users/list", nil)
	if _, stale, _ := e.cache.Get(key); stale {
		t.Error("with neither optimistic update nor rollback the cache must stay untouched")
	}
}

func TestMutateResponseValidation(t *testing.T) {
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Data: "malformed"}, nil
	})
	e := New(
		WithTransport(ct),
		WithEndpoints(map[string]EndpointConfig{
			"users/create": {
				ValidateResponse: func(resp *Response) error {
					return errors.New("bad shape")
				},
			},
		}),
	)
	defer e.Dispose()

	_, err := e.Mutate(context.Background(), "users/create", nil, testMutationConfig())
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Type != ErrorTypeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ct.totalCalls() != 1 {
		t.Errorf("validation failure must not trigger a second attempt, got %d", ct.totalCalls())
	}
}

func TestMutateEndpointNotConfigured(t *testing.T) {
	ct := newCountingTransport(nil)
	e := New(WithTransport(ct), WithEndpoints(map[string]EndpointConfig{"known": {}}))
	defer e.Dispose()

	_, err := e.Mutate(context.Background(), "unknown", nil, testMutationConfig())
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Type != ErrorTypeEndpointNotConfigured {
		t.Fatalf("expected EndpointNotConfigured, got %v", err)
	}
	if ct.totalCalls() != 0 {
		t.Error("unconfigured endpoint must not reach the transport")
	}
}
