package querykit

import (
	"fmt"
	"sort"
	"strings"
)

// RequestKey is the deterministic identity of a query: the endpoint plus a
// canonical serialization of its parameters. Two calls with equal keys are
// the same query.
type RequestKey struct {
	Endpoint string
	Params   string
}

// NewRequestKey canonicalizes params (sorted by name) so that map iteration
// order never produces distinct keys for the same call.
func NewRequestKey(endpoint string, params map[string]any) RequestKey {
	return RequestKey{Endpoint: endpoint, Params: canonicalParams(params)}
}

func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", params[name])
	}
	return b.String()
}

// String renders the key in endpoint?params form for storage and logging.
func (k RequestKey) String() string {
	if k.Params == "" {
		return k.Endpoint
	}
	return k.Endpoint + "?" + k.Params
}

// MatchesEndpoint reports whether the key's endpoint segment starts with
// prefix. Matching ignores Params, so one prefix invalidates every parameter
// variant of an endpoint.
func (k RequestKey) MatchesEndpoint(prefix string) bool {
	return strings.HasPrefix(k.Endpoint, prefix)
}
