package querykit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the query lifecycle and
// cache layers. It is safe for concurrent use.
type MetricsCollector struct {
	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queriesInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	inflightJoins *prometheus.CounterVec

	invalidationsTotal *prometheus.CounterVec

	mutationsTotal *prometheus.CounterVec

	persistedLoads *prometheus.CounterVec

	retryBudgetExceeded *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		queriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_queries_total",
				Help: "Total number of queries by outcome",
			},
			[]string{"endpoint", "result"},
		),
		queryDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querykit_query_duration_seconds",
				Help:    "Duration of queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		queriesInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querykit_queries_in_flight",
				Help: "Number of queries currently in flight",
			},
			[]string{"endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querykit_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		inflightJoins: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_inflight_joins_total",
				Help: "Total number of callers joined onto an in-flight call",
			},
			[]string{"endpoint"},
		),
		invalidationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_invalidations_total",
				Help: "Total number of prefix invalidations",
			},
			[]string{"prefix"},
		),
		mutationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_mutations_total",
				Help: "Total number of mutations by outcome",
			},
			[]string{"endpoint", "result"},
		),
		persistedLoads: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_persisted_loads_total",
				Help: "Total persisted-store lookups by outcome",
			},
			[]string{"outcome"},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_retry_budget_exceeded_total",
				Help: "Total number of times the retry budget was exceeded",
			},
			[]string{"endpoint"},
		),
	}
}

func (mc *MetricsCollector) RecordQueryStart(endpoint string) {
	mc.queriesInFlight.WithLabelValues(endpoint).Inc()
}

func (mc *MetricsCollector) RecordQueryEnd(endpoint string) {
	mc.queriesInFlight.WithLabelValues(endpoint).Dec()
}

func (mc *MetricsCollector) RecordQuery(endpoint, result string, duration time.Duration) {
	mc.queriesTotal.WithLabelValues(endpoint, result).Inc()
	mc.queryDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordRetries(endpoint string, n int) {
	if n > 0 {
		mc.retriesTotal.WithLabelValues(endpoint).Add(float64(n))
	}
}

func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

func (mc *MetricsCollector) RecordInflightJoin(endpoint string) {
	mc.inflightJoins.WithLabelValues(endpoint).Inc()
}

func (mc *MetricsCollector) RecordInvalidation(prefix string) {
	mc.invalidationsTotal.WithLabelValues(prefix).Inc()
}

func (mc *MetricsCollector) RecordMutation(endpoint, result string) {
	mc.mutationsTotal.WithLabelValues(endpoint, result).Inc()
}

func (mc *MetricsCollector) RecordPersistedLoad(outcome string) {
	mc.persistedLoads.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) RecordRetryBudgetExceeded(endpoint string) {
	mc.retryBudgetExceeded.WithLabelValues(endpoint).Inc()
}
