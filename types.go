package querykit

import (
	"context"
	"time"
)

// Transport performs a single network call described by a Request. It is
// injected into the engine; querykit never constructs one itself. A Transport
// must honor ctx cancellation and deadlines.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Request describes one transport call.
type Request struct {
	Endpoint string
	Params   map[string]any
	Body     any
	Mutation bool
}

// Response is the result of a successful transport call.
type Response struct {
	Data   any
	Status int
}

// BackoffKind selects the wait schedule between retry attempts.
type BackoffKind int

const (
	// BackoffLinear waits delay*i before retry i.
	BackoffLinear BackoffKind = iota
	// BackoffExponential waits delay*2^(i-1) before retry i.
	BackoffExponential
)

// FetchConfig controls a single fetch: caching, retry schedule and the
// per-attempt timeout.
type FetchConfig struct {
	CacheEnabled  bool
	TTL           time.Duration // 0 means entries never expire by age
	RetryAttempts int           // retries after the initial attempt
	RetryDelay    time.Duration
	Backoff       BackoffKind
	Timeout       time.Duration // per attempt; 0 disables the bound
}

// QueryConfig extends FetchConfig with query coordination knobs.
type QueryConfig struct {
	FetchConfig

	// Enabled gates the query entirely: when false, Query returns the
	// current state without touching the transport.
	Enabled bool

	// StaleTime is a soft freshness bound: a cached entry older than this
	// no longer satisfies a query, independent of TTL. 0 disables it.
	StaleTime time.Duration

	// RefetchInterval schedules a one-shot timer after each successful
	// fetch that marks the key stale. It never triggers a fetch itself.
	RefetchInterval time.Duration

	// RefetchOnWindowFocus opts the key into NotifyFocus revalidation.
	RefetchOnWindowFocus bool

	// DedupeWindow serves repeat queries from cache without consulting
	// staleness rules for this long after the last completed fetch.
	DedupeWindow time.Duration
}

// MutationConfig controls a one-shot write.
type MutationConfig struct {
	// OptimisticUpdate marks every cached key matching
	// InvalidateKeyPrefixes stale before the transport call is issued.
	OptimisticUpdate bool

	// RollbackOnError re-marks the same prefixes stale when the write
	// fails, forcing a refetch. Prior cached values are not restored.
	RollbackOnError bool

	InvalidateKeyPrefixes []string

	Timeout time.Duration
}

// QueryStatus is the per-key state machine position.
type QueryStatus int

const (
	StatusIdle QueryStatus = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s QueryStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// QueryMetadata carries per-call diagnostics.
type QueryMetadata struct {
	CacheHit   bool
	RetryCount int
	DurationMs int64
}

// QueryState is the observable state of one query key. One instance exists
// per RequestKey, created on first query and updated thereafter; it is only
// dropped by ClearCache.
type QueryState struct {
	Key          RequestKey
	Status       QueryStatus
	Data         any
	Loading      bool
	Err          error
	IsStale      bool
	LastUpdated  time.Time // advances only on completed transport calls
	RefetchCount int
	Metadata     QueryMetadata
}

// Option configures an Engine.
type Option func(*Engine)

// DefaultQueryConfig returns an enabled query configuration with caching on
// and a modest exponential retry schedule.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		FetchConfig: FetchConfig{
			CacheEnabled:  true,
			RetryAttempts: 3,
			RetryDelay:    100 * time.Millisecond,
			Backoff:       BackoffExponential,
			Timeout:       30 * time.Second,
		},
		Enabled:      true,
		DedupeWindow: 2 * time.Second,
	}
}

// DefaultMutationConfig returns a mutation configuration with optimistic
// invalidation and rollback enabled but no prefixes to match.
func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		OptimisticUpdate: true,
		RollbackOnError:  true,
		Timeout:          30 * time.Second,
	}
}
