package proxy

import (
	"encoding/base64"
	"net/http"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/constants"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/policy"
)

// modifyUpstreamRequest decorates the request with the identity established
// by the policy chain before it is proxied upstream.
func modifyUpstreamRequest(r *http.Request, ec *policy.ExecutionContext, cfg config.UpstreamConfig, requestID string) {
	r.Header.Set(constants.RequestIDHeader, requestID)

	if cfg.StripAuthorization {
		r.Header.Del("Authorization")
	}

	if cfg.IdentityHeaders {
		if id, ok := ec.Attribute(policy.ClientIDAttribute).(string); ok && id != "" {
			r.Header.Set(constants.ClientIDHeader, id)
		}
	}

	// The payload is JSON and may span lines, so it travels base64-encoded.
	if cfg.PayloadHeader {
		if payload, ok := ec.Attribute(policy.PayloadAttribute).(string); ok && payload != "" {
			r.Header.Set(constants.PayloadHeader, base64.StdEncoding.EncodeToString([]byte(payload)))
		}
	}
}
