package querykit

import (
	"time"

	"github.com/binarydom/querykit/codec"
	"github.com/binarydom/querykit/store"
)

// WithTransport sets the transport performing network calls. Required.
func WithTransport(t Transport) Option {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithTransportFunc sets a function transport.
func WithTransportFunc(fn TransportFunc) Option {
	return func(e *Engine) {
		e.transport = fn
	}
}

// WithEndpoints installs an endpoint registry. Once set, querying an
// endpoint not present in the map fails with EndpointNotConfigured.
func WithEndpoints(endpoints map[string]EndpointConfig) Option {
	return func(e *Engine) {
		e.endpoints = endpoints
	}
}

// WithCacheShards sets the shard count of the in-memory cache.
func WithCacheShards(n int) Option {
	return func(e *Engine) {
		e.cacheShards = n
	}
}

// WithCache sets a pre-built cache, sharing it between engines or tests.
func WithCache(c *Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithRetryBudget caps retries process-wide: at most maxRetries retries per
// perWindow across every key, on top of each call's own schedule.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(e *Engine) {
		e.budget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithPersistence installs a persisted-state store. Cache fills are written
// through and misses consult the store. The codec defaults to JSON when nil.
func WithPersistence(st store.Store, c codec.Codec) Option {
	return func(e *Engine) {
		e.persist = st
		e.codec = c
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(e *Engine) {
		e.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(e *Engine) {
		e.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(e *Engine) {
		if e.debug == nil {
			e.debug = DefaultDebugConfig()
		}
		e.debug.Enabled = true
		e.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(e *Engine) {
		if e.debug == nil {
			e.debug = DefaultDebugConfig()
		}
		e.debug.Enabled = true
	}
}

// WithDebugConfig sets the full debug configuration.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(e *Engine) {
		e.debug = cfg
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if e.debug == nil {
			e.debug = DefaultDebugConfig()
		}
		e.debug.RequestIDGen = gen
	}
}
