package querykit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/binarydom/querykit/internal/backoff"
)

// RetryPolicy computes the retry schedule for a failing transport call:
// one initial attempt plus RetryAttempts retries, each bounded by the
// per-attempt timeout, with the configured backoff between them.
type RetryPolicy struct {
	attempts int
	delay    time.Duration
	timeout  time.Duration
	strategy backoff.Strategy
	budget   *RetryBudget
}

// NewRetryPolicy builds a policy from a fetch configuration. budget may be
// nil; when set it caps retries process-wide across all keys.
func NewRetryPolicy(cfg FetchConfig, budget *RetryBudget) *RetryPolicy {
	var strategy backoff.Strategy
	switch cfg.Backoff {
	case BackoffExponential:
		strategy = backoff.Exponential{}
	default:
		strategy = backoff.Linear{}
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	return &RetryPolicy{
		attempts: attempts,
		delay:    cfg.RetryDelay,
		timeout:  cfg.Timeout,
		strategy: strategy,
		budget:   budget,
	}
}

// Delay returns the wait before retry number retry (1-indexed).
func (p *RetryPolicy) Delay(retry int) time.Duration {
	return p.strategy.Delay(retry, p.delay)
}

// Execute runs fn up to attempts+1 times. It returns the response of the
// first successful attempt and the number of retries consumed. An attempt
// that exceeds the timeout is aborted and counted as a failure against the
// same budget. Non-retryable errors (validation, configuration) surface
// immediately. When all attempts fail the error is MaxRetriesExceeded
// wrapping the last attempt's failure.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, int, error) {
	total := p.attempts + 1
	var lastErr error

	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			if p.budget != nil && !p.budget.Allow() {
				return nil, attempt - 1, &EngineError{
					Type:        ErrorTypeRetryBudgetExceeded,
					Message:     "retry budget exhausted",
					Cause:       ErrRetryBudgetExceeded,
					Attempt:     attempt - 1,
					MaxAttempts: total,
					Timestamp:   time.Now(),
				}
			}
			select {
			case <-time.After(p.Delay(attempt)):
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(nil)
		if p.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		resp, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, attempt, nil
		}

		var engineErr *EngineError
		if errors.As(err, &engineErr) && !engineErr.Retryable() {
			return nil, attempt, err
		}
		// A caller-level cancellation ends the whole call, not just the
		// attempt.
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		lastErr = err
	}

	return nil, total - 1, &EngineError{
		Type:        ErrorTypeMaxRetries,
		Message:     "all retry attempts exhausted",
		Cause:       lastErr,
		Attempt:     total - 1,
		MaxAttempts: total,
		Timestamp:   time.Now(),
	}
}

// RetryBudget caps the number of retries allowed within a rolling window,
// shared across every key the engine serves.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a budget of maxRetries per perWindow.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow reports whether another retry fits in the current window.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the spent and maximum retries plus the window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
