// Package querykit provides a request cache and query coordination engine
// for data-fetching layers built on an abstract transport:
//
//   - TTL-aware cache with mark-not-evict staleness and prefix invalidation
//   - In-flight registry merging concurrent identical queries into one call
//   - Retries with linear or exponential backoff and per-attempt timeouts
//   - One-shot mutations with optimistic cache invalidation
//   - Per-key generation counters so slow completions never clobber
//     fresher data
//   - Synchronous event fan-out, Prometheus metrics and lightweight
//     structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Explicit engine instances, no package-level singletons
//   - Safe concurrent use of a single *Engine instance
//   - Extensibility via pluggable transport, persisted store, codec and
//     metrics
//
// Typical usage:
//
//	engine := querykit.New(
//	    querykit.WithTransport(transport),
//	    querykit.WithMetrics(),
//	)
//	defer engine.Dispose()
//
//	cfg := querykit.DefaultQueryConfig()
//	cfg.TTL = 5 * time.Second
//	state, err := engine.Query(ctx, "users/1", nil, cfg)
//
// The engine never issues network calls itself: supply a Transport that
// performs one call per Execute invocation. The library avoids opinionated
// logging: provide a Logger (e.g. via WithSimpleLogger) + enable debug flags
// selectively (WithDebug / WithDebugConfig) for insight without noise.
package querykit
