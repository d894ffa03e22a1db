package querykit

import "time"

// EndpointConfig describes one registered endpoint. Both validators are
// optional; a nil func skips that check.
type EndpointConfig struct {
	// ValidateRequest rejects malformed request shapes before any
	// transport call. A rejection surfaces as a Validation error and is
	// never retried.
	ValidateRequest func(*Request) error

	// ValidateResponse rejects malformed response shapes. A rejection
	// surfaces as a Validation error; remaining retry budget is not
	// consumed.
	ValidateResponse func(*Response) error
}

// endpointFor resolves the endpoint configuration. With no registry
// configured every endpoint is allowed; with one, unknown endpoints are a
// programmer error surfaced synchronously.
func (e *Engine) endpointFor(endpoint string) (EndpointConfig, error) {
	if e.endpoints == nil {
		return EndpointConfig{}, nil
	}
	cfg, ok := e.endpoints[endpoint]
	if !ok {
		return EndpointConfig{}, &EngineError{
			Type:      ErrorTypeEndpointNotConfigured,
			Message:   "endpoint not configured",
			Endpoint:  endpoint,
			Timestamp: time.Now(),
		}
	}
	return cfg, nil
}

func (e *Engine) validateRequest(cfg EndpointConfig, req *Request, key RequestKey) error {
	if cfg.ValidateRequest == nil {
		return nil
	}
	if err := cfg.ValidateRequest(req); err != nil {
		return &EngineError{
			Type:      ErrorTypeValidation,
			Message:   "request rejected by validator",
			Cause:     err,
			Endpoint:  req.Endpoint,
			Key:       key.String(),
			Timestamp: time.Now(),
		}
	}
	return nil
}
