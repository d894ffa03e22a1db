package querykit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/binarydom/querykit/codec"
	"github.com/binarydom/querykit/store"
)

// queryRecord is the engine-internal holder of one key's QueryState plus the
// arguments of the last query against it (needed for focus revalidation).
type queryRecord struct {
	mu    sync.Mutex
	state QueryState

	endpoint string
	params   map[string]any
	config   QueryConfig

	// staleTimer is the one-shot refetch-interval timer for this key.
	staleTimer *time.Timer
}

func (r *queryRecord) snapshot() QueryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Engine coordinates queries and mutations over an injected Transport,
// owning the cache, the in-flight registry and the event bus. Construct one
// per application with New and pass it by reference; there are no package
// singletons. Safe for concurrent use.
type Engine struct {
	transport Transport
	cache     *Cache
	inflight  *InFlightRegistry
	bus       *EventBus
	endpoints map[string]EndpointConfig
	budget    *RetryBudget
	persist   store.Store
	codec     codec.Codec
	metrics   *MetricsCollector
	logger    Logger
	debug     *DebugConfig

	cacheShards int

	mu       sync.Mutex
	records  map[string]*queryRecord
	disposed bool

	validationError error
}

// New constructs an Engine using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Engine {
	e := &Engine{
		inflight:    NewInFlightRegistry(),
		bus:         NewEventBus(),
		debug:       DefaultDebugConfig(),
		cacheShards: 16,
		records:     make(map[string]*queryRecord),
	}

	for _, option := range options {
		option(e)
	}

	if e.cache == nil {
		e.cache = NewCache(e.cacheShards)
	}
	if e.persist != nil && e.codec == nil {
		e.codec = codec.JSON{}
	}
	if e.transport == nil {
		e.validationError = ErrNoTransport
	}

	return e
}

// IsValid reports whether configuration validation passed at construction.
func (e *Engine) IsValid() bool {
	return e.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (e *Engine) ValidationError() error {
	return e.validationError
}

// Query executes one read for endpoint+params per cfg: cache check, in-flight
// join, retried transport call, cache fill and notification. It may suspend
// on the transport, on backoff waits and on per-attempt timeouts, and
// returns the key's resulting state.
func (e *Engine) Query(ctx context.Context, endpoint string, params map[string]any, cfg QueryConfig) (QueryState, error) {
	start := time.Now()

	if err := e.usable(); err != nil {
		return QueryState{}, err
	}
	key := NewRequestKey(endpoint, params)
	rec := e.record(key)

	// A disabled query is a pure state read; the endpoint registry is not
	// consulted.
	if !cfg.Enabled {
		return rec.snapshot(), nil
	}

	epCfg, err := e.endpointFor(endpoint)
	if err != nil {
		return QueryState{}, err
	}

	req := &Request{Endpoint: endpoint, Params: params}
	if verr := e.validateRequest(epCfg, req, key); verr != nil {
		return rec.snapshot(), verr
	}

	requestID := e.requestID()
	if e.debugLog("query") {
		e.logger.Debug("Starting query", "requestID", requestID, "key", key.String())
	}

	if cfg.CacheEnabled {
		if state, ok := e.tryCache(ctx, rec, key, cfg, start, requestID); ok {
			return state, nil
		}
	}

	rec.mu.Lock()
	rec.state.Key = key
	rec.state.Status = StatusLoading
	rec.state.Loading = true
	rec.endpoint = endpoint
	rec.params = params
	rec.config = cfg
	rec.mu.Unlock()

	e.publish(Event{Type: EventRequestStart, Key: key.String(), Endpoint: endpoint, At: time.Now()})
	if e.metrics != nil {
		e.metrics.RecordQueryStart(endpoint)
		defer e.metrics.RecordQueryEnd(endpoint)
	}

	flight, owner := e.inflight.Acquire(key.String(), e.cache.Generation(key))
	if !owner {
		return e.joinFlight(ctx, rec, flight, key, endpoint, start, requestID)
	}

	resp, retries, ferr := e.fetch(ctx, req, cfg.FetchConfig, epCfg, key, requestID)
	now := time.Now()

	if ferr != nil {
		rec.mu.Lock()
		rec.state.Status = StatusError
		rec.state.Loading = false
		rec.state.Err = ferr
		rec.state.IsStale = true
		rec.state.LastUpdated = now
		rec.state.Metadata = QueryMetadata{RetryCount: retries, DurationMs: time.Since(start).Milliseconds()}
		out := rec.state
		rec.mu.Unlock()

		e.cache.MarkStale(key)
		e.inflight.Complete(key.String(), nil, retries, ferr)
		e.publish(Event{Type: EventRequestError, Key: key.String(), Endpoint: endpoint, Err: ferr, At: now})
		if e.metrics != nil {
			e.metrics.RecordRetries(endpoint, retries)
			e.metrics.RecordQuery(endpoint, "error", time.Since(start))
		}
		if e.debugLog("query") {
			e.logger.Warn("Query failed", "requestID", requestID, "key", key.String(), "error", ferr.Error())
		}
		return out, ferr
	}

	// Discard completions whose generation fell behind: the key was
	// invalidated or cleared while the call was outstanding, and a slow
	// response must not overwrite fresher data. The compare and the write
	// happen under one shard lock so an invalidation cannot land between
	// them.
	applied := e.cache.SetIfGeneration(key, resp.Data, now, flight.Generation())
	if applied {
		e.persistEntry(ctx, key, resp.Data, now, cfg.TTL)
	} else if e.debugLog("cache") {
		e.logger.Debug("Discarding outdated completion", "requestID", requestID, "key", key.String())
	}

	rec.mu.Lock()
	rec.state.Status = StatusSuccess
	rec.state.Loading = false
	rec.state.Data = resp.Data
	rec.state.Err = nil
	rec.state.IsStale = !applied
	rec.state.LastUpdated = now
	rec.state.RefetchCount++
	rec.state.Metadata = QueryMetadata{RetryCount: retries, DurationMs: time.Since(start).Milliseconds()}
	out := rec.state
	rec.mu.Unlock()

	if applied && cfg.RefetchInterval > 0 {
		e.scheduleStale(rec, key, cfg.RefetchInterval)
	}

	e.inflight.Complete(key.String(), resp.Data, retries, nil)
	e.publish(Event{Type: EventRequestSuccess, Key: key.String(), Endpoint: endpoint, At: now})
	if e.metrics != nil {
		e.metrics.RecordRetries(endpoint, retries)
		e.metrics.RecordQuery(endpoint, "success", time.Since(start))
		e.metrics.RecordCacheSize("default", e.cache.Len())
	}
	return out, nil
}

// tryCache implements the cache-hit short circuit: the dedupe window ignores
// staleness entirely; outside it an entry must be unmarked and TTL-fresh. A
// hit is returned as-is with CacheHit metadata and no state transition.
func (e *Engine) tryCache(ctx context.Context, rec *queryRecord, key RequestKey, cfg QueryConfig, start time.Time, requestID string) (QueryState, bool) {
	entry, stale, ok := e.cache.Get(key)
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordCacheMiss(key.Endpoint)
		}
		entry, ok = e.loadPersisted(ctx, key)
		if !ok {
			return QueryState{}, false
		}
		e.cache.Set(key, entry.Data, entry.StoredAt)
		stale = false
	}

	now := time.Now()
	hit := false
	if cfg.DedupeWindow > 0 {
		rec.mu.Lock()
		last := rec.state.LastUpdated
		rec.mu.Unlock()
		if !last.IsZero() && now.Sub(last) < cfg.DedupeWindow {
			hit = true
		}
	}
	if !hit && !stale && entry.Fresh(cfg.TTL, now) {
		if cfg.StaleTime == 0 || now.Sub(entry.StoredAt) < cfg.StaleTime {
			hit = true
		}
	}
	if !hit {
		return QueryState{}, false
	}

	if e.metrics != nil {
		e.metrics.RecordCacheHit(key.Endpoint)
	}
	if e.debugLog("cache") {
		e.logger.Debug("Cache hit", "requestID", requestID, "key", key.String())
	}

	rec.mu.Lock()
	rec.state.Key = key
	rec.state.Data = entry.Data
	rec.state.Metadata.CacheHit = true
	rec.state.Metadata.DurationMs = time.Since(start).Milliseconds()
	out := rec.state
	rec.mu.Unlock()
	return out, true
}

// joinFlight waits on the owner's in-flight call and applies its outcome to
// this caller's view. The owner already updated the shared record before
// releasing waiters.
func (e *Engine) joinFlight(ctx context.Context, rec *queryRecord, flight *Flight, key RequestKey, endpoint string, start time.Time, requestID string) (QueryState, error) {
	if e.metrics != nil {
		e.metrics.RecordInflightJoin(endpoint)
	}
	if e.debugLog("query") {
		e.logger.Debug("Joining in-flight call", "requestID", requestID, "key", key.String())
	}

	_, _, werr := flight.Wait(ctx)
	if werr != nil && werr == ctx.Err() {
		return rec.snapshot(), werr
	}

	out := rec.snapshot()
	out.Metadata.DurationMs = time.Since(start).Milliseconds()
	if e.metrics != nil {
		result := "success"
		if werr != nil {
			result = "error"
		}
		e.metrics.RecordQuery(endpoint, result, time.Since(start))
	}
	return out, werr
}

func (e *Engine) fetch(ctx context.Context, req *Request, cfg FetchConfig, epCfg EndpointConfig, key RequestKey, requestID string) (*Response, int, error) {
	policy := NewRetryPolicy(cfg, e.budget)
	attempt := 0
	resp, retries, err := policy.Execute(ctx, func(actx context.Context) (*Response, error) {
		if attempt > 0 && e.debugLog("retry") {
			e.logger.Info("Retry attempt", "requestID", requestID, "key", key.String(), "attempt", attempt)
		}
		attempt++

		resp, terr := e.transport.Execute(actx, req)
		if terr != nil {
			return nil, &EngineError{
				Type:      ErrorTypeTransport,
				Message:   "transport call failed",
				Cause:     terr,
				Endpoint:  req.Endpoint,
				Key:       key.String(),
				Timestamp: time.Now(),
			}
		}
		if epCfg.ValidateResponse != nil {
			if verr := epCfg.ValidateResponse(resp); verr != nil {
				return nil, &EngineError{
					Type:      ErrorTypeValidation,
					Message:   "response rejected by validator",
					Cause:     verr,
					Endpoint:  req.Endpoint,
					Key:       key.String(),
					Timestamp: time.Now(),
				}
			}
		}
		return resp, nil
	})

	if err != nil && e.metrics != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) && engineErr.Type == ErrorTypeRetryBudgetExceeded {
			e.metrics.RecordRetryBudgetExceeded(req.Endpoint)
		}
	}
	return resp, retries, err
}

// scheduleStale arms the refetch-interval timer: when it fires the key is
// marked stale so the NEXT query refetches. The timer never fetches.
func (e *Engine) scheduleStale(rec *queryRecord, key RequestKey, interval time.Duration) {
	rec.mu.Lock()
	if rec.staleTimer != nil {
		rec.staleTimer.Stop()
	}
	rec.staleTimer = time.AfterFunc(interval, func() {
		e.cache.MarkStale(key)
		rec.mu.Lock()
		rec.state.IsStale = true
		rec.mu.Unlock()
	})
	rec.mu.Unlock()
}

// NotifyFocus revalidates on application foreground: every key whose state
// is stale and whose last config asked for RefetchOnWindowFocus is
// re-queried. Each key revalidates independently; one key's failure never
// cancels the others. Returns the first query error, if any.
func (e *Engine) NotifyFocus(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}

	e.mu.Lock()
	targets := make([]*queryRecord, 0, len(e.records))
	for _, rec := range e.records {
		targets = append(targets, rec)
	}
	e.mu.Unlock()

	var g errgroup.Group
	for _, rec := range targets {
		rec.mu.Lock()
		stale := rec.state.IsStale
		cfg := rec.config
		endpoint := rec.endpoint
		params := rec.params
		rec.mu.Unlock()

		if !stale || !cfg.RefetchOnWindowFocus || endpoint == "" {
			continue
		}
		g.Go(func() error {
			_, err := e.Query(ctx, endpoint, params, cfg)
			return err
		})
	}
	return g.Wait()
}

// InvalidateQuery marks every cached entry and query state whose endpoint
// starts with prefix as stale. Entries are not evicted; the next query for
// an affected key performs a fresh transport call regardless of TTL. Returns
// the number of cache entries marked.
func (e *Engine) InvalidateQuery(prefix string) int {
	n := e.cache.InvalidateByPrefix(prefix)

	e.mu.Lock()
	for _, rec := range e.records {
		rec.mu.Lock()
		if rec.state.Key.MatchesEndpoint(prefix) {
			rec.state.IsStale = true
		}
		rec.mu.Unlock()
	}
	e.mu.Unlock()

	e.publish(Event{Type: EventInvalidated, Endpoint: prefix, At: time.Now()})
	if e.metrics != nil {
		e.metrics.RecordInvalidation(prefix)
	}
	return n
}

// ClearCache evicts every cache entry and drops all query states. Generation
// counters advance so calls still in flight are discarded on completion.
func (e *Engine) ClearCache() {
	e.cache.Clear()

	e.mu.Lock()
	for _, rec := range e.records {
		rec.mu.Lock()
		if rec.staleTimer != nil {
			rec.staleTimer.Stop()
		}
		rec.mu.Unlock()
	}
	e.records = make(map[string]*queryRecord)
	e.mu.Unlock()

	e.publish(Event{Type: EventCacheCleared, At: time.Now()})
	if e.metrics != nil {
		e.metrics.RecordCacheSize("default", 0)
	}
}

// Subscribe registers fn for every event matching pred (nil matches all).
// The returned handle unsubscribes.
func (e *Engine) Subscribe(pred func(Event) bool, fn func(Event)) func() {
	return e.bus.Subscribe(pred, fn)
}

// State returns a snapshot of the query state for endpoint+params, if one
// exists.
func (e *Engine) State(endpoint string, params map[string]any) (QueryState, bool) {
	key := NewRequestKey(endpoint, params)
	e.mu.Lock()
	rec, ok := e.records[key.String()]
	e.mu.Unlock()
	if !ok {
		return QueryState{}, false
	}
	return rec.snapshot(), true
}

// Dispose stops timers, closes the persisted store and marks the engine
// unusable. Safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	for _, rec := range e.records {
		rec.mu.Lock()
		if rec.staleTimer != nil {
			rec.staleTimer.Stop()
		}
		rec.mu.Unlock()
	}
	e.mu.Unlock()

	if e.persist != nil {
		_ = e.persist.Close()
	}
}

func (e *Engine) usable() error {
	if e.validationError != nil {
		return e.validationError
	}
	e.mu.Lock()
	disposed := e.disposed
	e.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	return nil
}

func (e *Engine) record(key RequestKey) *queryRecord {
	ks := key.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[ks]
	if !ok {
		rec = &queryRecord{state: QueryState{Key: key, Status: StatusIdle}}
		e.records[ks] = rec
	}
	return rec
}

func (e *Engine) publish(ev Event) {
	e.bus.Publish(ev)
}
