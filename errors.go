package querykit

import (
	"errors"
	"fmt"
	"time"
)

// Error type discriminators carried by EngineError.Type.
const (
	// ErrorTypeTransport is a network or timeout failure of a single
	// attempt; retryable under the retry policy.
	ErrorTypeTransport = "Transport"
	// ErrorTypeMaxRetries means every attempt failed; wraps the last
	// transport failure.
	ErrorTypeMaxRetries = "MaxRetriesExceeded"
	// ErrorTypeEndpointNotConfigured is a programmer error: the endpoint
	// is not in the configured registry. Never retried.
	ErrorTypeEndpointNotConfigured = "EndpointNotConfigured"
	// ErrorTypeValidation means a configured validator rejected the
	// request or response shape. Never retried.
	ErrorTypeValidation = "Validation"
	// ErrorTypeRetryBudgetExceeded means the process-wide retry budget ran
	// out before the per-call schedule did.
	ErrorTypeRetryBudgetExceeded = "RetryBudgetExceeded"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrDisposed is returned by operations on a disposed engine.
	ErrDisposed = errors.New("querykit: engine disposed")

	// ErrNoTransport is reported when the engine was built without a
	// transport.
	ErrNoTransport = errors.New("querykit: no transport configured")

	// ErrRetryBudgetExceeded is wrapped when the shared budget is spent.
	ErrRetryBudgetExceeded = errors.New("querykit: retry budget exceeded")
)

// EngineError is the structured error produced by the engine.
type EngineError struct {
	Type        string
	Message     string
	Cause       error
	Endpoint    string
	Key         string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Key != "" {
		msg = fmt.Sprintf("[%s] %s", e.Key, msg)
	}
	if e.MaxAttempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt+1, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *EngineError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*EngineError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// Retryable reports whether the retry policy may try again after this error.
func (e *EngineError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Type == ErrorTypeTransport
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on a later query. Configuration and validation errors are
// permanent until the program changes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryBudgetExceeded) {
		return true
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		switch engineErr.Type {
		case ErrorTypeTransport, ErrorTypeMaxRetries, ErrorTypeRetryBudgetExceeded:
			return true
		default:
			return false
		}
	}
	return false
}
