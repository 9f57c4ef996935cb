package policy

import (
	"github.com/wso2/open-oauth2-introspect-proxy/internal/oauth2"
)

// ExecutionContext carries per-request state across the policies of a
// chain. One is created per request and never shared between requests.
// Writes are strictly sequenced by the chain (a policy runs only after its
// predecessor completed), so the context needs no locking.
type ExecutionContext struct {
	requestID string
	registry  *oauth2.Registry
	attrs     map[string]interface{}
}

// NewExecutionContext builds the context for a single request.
func NewExecutionContext(requestID string, registry *oauth2.Registry) *ExecutionContext {
	return &ExecutionContext{
		requestID: requestID,
		registry:  registry,
		attrs:     make(map[string]interface{}),
	}
}

// RequestID returns the identifier assigned to this request.
func (ec *ExecutionContext) RequestID() string {
	return ec.requestID
}

// Resources returns the registry of configured authorization servers.
func (ec *ExecutionContext) Resources() *oauth2.Registry {
	return ec.registry
}

// SetAttribute stores a request-scoped attribute.
func (ec *ExecutionContext) SetAttribute(key string, value interface{}) {
	ec.attrs[key] = value
}

// Attribute returns the attribute stored under key, or nil.
func (ec *ExecutionContext) Attribute(key string) interface{} {
	return ec.attrs[key]
}
