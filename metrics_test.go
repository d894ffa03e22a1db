package querykit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsQueryOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(reg)

	ct := newCountingTransport(nil)
	e := New(WithTransport(ct), WithMetricsCollector(mc))
	defer e.Dispose()

	cfg := testQueryConfig()
	cfg.TTL = time.Hour

	if _, err := e.Query(context.Background(), "users/1", nil, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Query(context.Background(), "users/1", nil, cfg); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(mc.queriesTotal.WithLabelValues("users/1", "success")); got != 1 {
		t.Errorf("queries_total{success}=%v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("users/1")); got != 1 {
		t.Errorf("cache_hits_total=%v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("users/1")); got != 1 {
		t.Errorf("cache_misses_total=%v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.queriesInFlight.WithLabelValues("users/1")); got != 0 {
		t.Errorf("queries_in_flight=%v, want 0 at rest", got)
	}
}

func TestMetricsRetriesAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(reg)

	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, errors.New("down")
	})
	e := New(WithTransport(ct), WithMetricsCollector(mc))
	defer e.Dispose()

	cfg := testQueryConfig()
	cfg.RetryAttempts = 2

	if _, err := e.Query(context.Background(), "users/1", nil, cfg); err == nil {
		t.Fatal("expected failure")
	}

	if got := testutil.ToFloat64(mc.queriesTotal.WithLabelValues("users/1", "error")); got != 1 {
		t.Errorf("queries_total{error}=%v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("users/1")); got != 2 {
		t.Errorf("retries_total=%v, want 2", got)
	}
}

func TestMetricsMutationsAndInvalidations(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(reg)

	ct := newCountingTransport(nil)
	e := New(WithTransport(ct), WithMetricsCollector(mc))
	defer e.Dispose()

	if _, err := e.Mutate(context.Background(), "users/create", nil, testMutationConfig("users")); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(mc.mutationsTotal.WithLabelValues("users/create", "success")); got != 1 {
		t.Errorf("mutations_total=%v, want 1", got)
	}
	// Optimistic pass plus post-success re-mark.
	if got := testutil.ToFloat64(mc.invalidationsTotal.WithLabelValues("users")); got != 2 {
		t.Errorf("invalidations_total=%v, want 2", got)
	}
}

func TestMetricsInflightJoins(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(reg)

	release := make(chan struct{})
	ct := newCountingTransport(func(ctx context.Context, req *Request) (*Response, error) {
		<-release
		return &Response{Data: "x"}, nil
	})
	e := New(WithTransport(ct), WithMetricsCollector(mc))
	defer e.Dispose()

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = e.Query(context.Background(), "users/1", nil, testQueryConfig())
			done <- struct{}{}
		}()
	}

	// Wait until the second caller has actually joined before releasing
	// the owner.
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(mc.inflightJoins.WithLabelValues("users/1")) < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	<-done
	<-done

	if got := testutil.ToFloat64(mc.inflightJoins.WithLabelValues("users/1")); got != 1 {
		t.Errorf("inflight_joins_total=%v, want 1", got)
	}
}

func TestMetricsPersistedLoadOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(reg)

	mc.RecordPersistedLoad("hit")
	mc.RecordPersistedLoad("miss")
	mc.RecordPersistedLoad("miss")

	if got := testutil.ToFloat64(mc.persistedLoads.WithLabelValues("hit")); got != 1 {
		t.Errorf("persisted_loads_total{hit}=%v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.persistedLoads.WithLabelValues("miss")); got != 2 {
		t.Errorf("persisted_loads_total{miss}=%v, want 2", got)
	}
}
