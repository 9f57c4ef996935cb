// Package oauth2 defines the token introspection contract consumed by the
// validation policy, together with the provider implementations the proxy
// can be configured with.
package oauth2

import (
	"context"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
)

// Handler receives the outcome of an introspection call.
type Handler func(*Response)

// Response is the result of introspecting one access token.
//
// Err is set when the call itself failed (network error, timeout,
// misbehaving server) and no authoritative answer was obtained. Otherwise
// Payload carries the authorization server's answer verbatim and Success
// reports whether the token was accepted.
type Response struct {
	Success   bool
	Payload   []byte
	MediaType string
	Err       error
}

// Resource is a configured introspection provider.
//
// Introspect must always eventually invoke handler exactly once, from an
// arbitrary goroutine: with an authoritative result, or with Err set when
// no authoritative answer could be obtained. The call itself returns
// without blocking; the given context bounds the underlying work.
type Resource interface {
	Introspect(ctx context.Context, token string, handler Handler)
}

// outcome maps a response to its metrics label.
func outcome(resp *Response) string {
	switch {
	case resp.Err != nil:
		return metrics.OutcomeError
	case resp.Success:
		return metrics.OutcomeSuccess
	default:
		return metrics.OutcomeRejected
	}
}
