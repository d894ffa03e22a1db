package querykit

import (
	"context"
	"time"
)

// Mutate executes a one-shot write against endpoint. Mutations are never
// cached and never retried: a failure surfaces after a single attempt.
//
// With OptimisticUpdate, every cached key matching InvalidateKeyPrefixes is
// marked stale strictly before the transport call is issued. On success the
// same prefixes are re-marked (idempotent) so the next read fetches fresh
// data. On failure with RollbackOnError the prefixes are re-marked as well;
// reconciliation is by forced refetch, prior cached values are not restored.
func (e *Engine) Mutate(ctx context.Context, endpoint string, body any, cfg MutationConfig) (any, error) {
	start := time.Now()

	if err := e.usable(); err != nil {
		return nil, err
	}
	epCfg, err := e.endpointFor(endpoint)
	if err != nil {
		return nil, err
	}

	key := NewRequestKey(endpoint, nil)
	req := &Request{Endpoint: endpoint, Body: body, Mutation: true}
	if verr := e.validateRequest(epCfg, req, key); verr != nil {
		return nil, verr
	}

	requestID := e.requestID()
	if e.debugLog("mutation") {
		e.logger.Debug("Starting mutation", "requestID", requestID, "endpoint", endpoint)
	}
	e.publish(Event{Type: EventMutationStart, Key: key.String(), Endpoint: endpoint, At: time.Now()})

	if cfg.OptimisticUpdate {
		e.invalidatePrefixes(cfg.InvalidateKeyPrefixes)
	}

	mctx := ctx
	cancel := context.CancelFunc(nil)
	if cfg.Timeout > 0 {
		mctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	resp, terr := e.transport.Execute(mctx, req)
	if cancel != nil {
		cancel()
	}
	now := time.Now()

	if terr == nil && epCfg.ValidateResponse != nil {
		if verr := epCfg.ValidateResponse(resp); verr != nil {
			return nil, e.failMutation(endpoint, key, cfg, &EngineError{
				Type:      ErrorTypeValidation,
				Message:   "response rejected by validator",
				Cause:     verr,
				Endpoint:  endpoint,
				Key:       key.String(),
				Timestamp: now,
				Duration:  time.Since(start),
			}, requestID)
		}
	}
	if terr != nil {
		return nil, e.failMutation(endpoint, key, cfg, &EngineError{
			Type:      ErrorTypeTransport,
			Message:   "mutation transport call failed",
			Cause:     terr,
			Endpoint:  endpoint,
			Key:       key.String(),
			Timestamp: now,
			Duration:  time.Since(start),
		}, requestID)
	}

	// Re-mark so reads issued between the optimistic pass and now still
	// see the staleness; a no-op when OptimisticUpdate already ran.
	e.invalidatePrefixes(cfg.InvalidateKeyPrefixes)

	e.publish(Event{Type: EventMutationSuccess, Key: key.String(), Endpoint: endpoint, At: now})
	if e.metrics != nil {
		e.metrics.RecordMutation(endpoint, "success")
	}
	if e.debugLog("mutation") {
		e.logger.Debug("Mutation complete", "requestID", requestID, "endpoint", endpoint)
	}
	return resp.Data, nil
}

func (e *Engine) failMutation(endpoint string, key RequestKey, cfg MutationConfig, merr *EngineError, requestID string) error {
	if cfg.RollbackOnError {
		e.invalidatePrefixes(cfg.InvalidateKeyPrefixes)
	}
	e.publish(Event{Type: EventMutationError, Key: key.String(), Endpoint: endpoint, Err: merr, At: time.Now()})
	if e.metrics != nil {
		e.metrics.RecordMutation(endpoint, "error")
	}
	if e.debugLog("mutation") {
		e.logger.Warn("Mutation failed", "requestID", requestID, "endpoint", endpoint, "error", merr.Error())
	}
	return merr
}

func (e *Engine) invalidatePrefixes(prefixes []string) {
	for _, prefix := range prefixes {
		e.InvalidateQuery(prefix)
	}
}
