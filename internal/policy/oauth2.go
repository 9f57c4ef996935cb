package policy

import (
	"net/http"
	"strings"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/oauth2"
)

// Bearer scheme and challenge realm from RFC 6750.
const (
	BearerScheme = "Bearer"
	BearerRealm  = "gravitee.io"
)

// Context attributes published by the OAuth2 policy for downstream
// consumers such as header modifiers.
const (
	AccessTokenAttribute = "oauth.access_token"
	ClientIDAttribute    = "oauth.client_id"
	PayloadAttribute     = "oauth.payload"
)

const defaultRejectionMediaType = "application/json"

// OAuth2 validates bearer access tokens against a configured authorization
// server before letting a request through to the upstream.
//
// An instance is stateless and shared by every in-flight request; all
// mutable state lives in the per-request ExecutionContext.
type OAuth2 struct {
	cfg config.OAuth2Config
}

// NewOAuth2 builds the policy from its configuration block.
func NewOAuth2(cfg config.OAuth2Config) *OAuth2 {
	return &OAuth2{cfg: cfg}
}

// Name implements Policy.
func (p *OAuth2) Name() string {
	return "oauth2"
}

// OnRequest implements Policy. It extracts the bearer token, asks the
// configured resource to introspect it and completes the chain from the
// introspection callback.
func (p *OAuth2) OnRequest(w http.ResponseWriter, r *http.Request, ec *ExecutionContext, chain Chain) {
	resource := ec.Resources().Lookup(p.cfg.OAuthResource)
	if resource == nil {
		logger.Error("No OAuth resource %q is configured for request %s", p.cfg.OAuthResource, ec.RequestID())
		chain.FailWith(Failure(http.StatusUnauthorized, "No OAuth authorization server has been configured"))
		return
	}

	headers := r.Header.Values("Authorization")
	if len(headers) == 0 {
		p.sendError(w, chain, "invalid_request", "No OAuth authorization header was supplied")
		return
	}

	bearer, ok := firstBearerHeader(headers)
	if !ok {
		p.sendError(w, chain, "invalid_request", "No OAuth authorization header was supplied")
		return
	}

	accessToken := strings.TrimSpace(bearer[len(BearerScheme):])
	if accessToken == "" {
		p.sendError(w, chain, "invalid_request", "No OAuth access token was supplied")
		return
	}

	ec.SetAttribute(AccessTokenAttribute, accessToken)

	logger.Debug("Introspecting access token for request %s", ec.RequestID())
	resource.Introspect(r.Context(), accessToken, p.handleResponse(chain, w, r, ec))
}

// firstBearerHeader returns the first Authorization header value carrying
// the bearer scheme. The scheme comparison is case-insensitive.
func firstBearerHeader(headers []string) (string, bool) {
	for _, h := range headers {
		if len(h) >= len(BearerScheme) && strings.EqualFold(h[:len(BearerScheme)], BearerScheme) {
			return h, true
		}
	}
	return "", false
}

// handleResponse interprets the introspection outcome. It runs exactly once
// per request, possibly on another goroutine than OnRequest.
func (p *OAuth2) handleResponse(chain Chain, w http.ResponseWriter, r *http.Request, ec *ExecutionContext) oauth2.Handler {
	return func(response *oauth2.Response) {
		if response.Err == nil && response.Success {
			payload, err := parsePayload(response.Payload)
			if err != nil {
				logger.Error("Unable to check required scope from introspection endpoint payload: %s", string(response.Payload))
				p.sendError(w, chain, "server_error", "Invalid response from authorization server")
				return
			}

			clientID, _ := payloadField(payload, clientIDField)
			id := strings.TrimSpace(textValue(clientID))
			if id == "" {
				p.sendError(w, chain, "invalid_client", "No client_id was supplied")
				return
			}
			ec.SetAttribute(ClientIDAttribute, id)

			if p.cfg.CheckRequiredScopes && !hasRequiredScopes(payload, p.cfg.RequiredScopes) {
				p.sendError(w, chain, "insufficient_scope",
					"The request requires higher privileges than provided by the access token.")
				return
			}

			if p.cfg.ExtractPayload {
				ec.SetAttribute(PayloadAttribute, string(response.Payload))
			}

			chain.DoNext(w, r)
			return
		}

		w.Header().Add("WWW-Authenticate", BearerScheme+" realm="+BearerRealm+" ")

		if response.Err == nil {
			chain.FailWith(Result{
				Status:      http.StatusUnauthorized,
				Body:        response.Payload,
				ContentType: rejectionMediaType(response.MediaType),
			})
			return
		}

		logger.Warn("Introspection failed for request %s: %v", ec.RequestID(), response.Err)
		chain.FailWith(Failure(http.StatusServiceUnavailable, "temporarily_unavailable"))
	}
}

// sendError rejects the request with an RFC 6750 bearer challenge:
//
//	HTTP/1.1 401 Unauthorized
//	WWW-Authenticate: Bearer realm="example",
//	error="invalid_token",
//	error_description="The access token expired"
func (p *OAuth2) sendError(w http.ResponseWriter, chain Chain, errorCode, description string) {
	header := BearerScheme + ` realm="` + BearerRealm + `", error="` + errorCode + `", error_description="` + description + `"`
	w.Header().Add("WWW-Authenticate", header)
	chain.FailWith(Failure(http.StatusUnauthorized, ""))
}

func rejectionMediaType(mediaType string) string {
	if mediaType == "" {
		return defaultRejectionMediaType
	}
	return mediaType
}
