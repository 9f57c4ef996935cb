package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
)

// RemoteResource introspects tokens against an RFC 7662 endpoint.
type RemoteResource struct {
	name          string
	discoveryURL  string
	authMethod    string
	clientID      string
	clientSecret  string
	bearerToken   string
	tokenTypeHint string
	client        *http.Client

	mu       sync.Mutex
	endpoint string // discovered from discoveryURL when not configured
}

// NewRemoteResource builds a resource from its configuration block. The
// timeout argument is the global default; the block may override it.
func NewRemoteResource(cfg config.ResourceConfig, timeout time.Duration) *RemoteResource {
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &RemoteResource{
		name:          cfg.Name,
		endpoint:      cfg.IntrospectionEndpoint,
		discoveryURL:  cfg.DiscoveryURL,
		authMethod:    cfg.AuthMethod,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		bearerToken:   cfg.BearerToken,
		tokenTypeHint: cfg.TokenTypeHint,
		client:        &http.Client{Timeout: timeout},
	}
}

// Introspect implements Resource.
func (r *RemoteResource) Introspect(ctx context.Context, token string, handler Handler) {
	go func() {
		start := time.Now()
		resp := r.introspect(ctx, token)
		metrics.RecordIntrospection(r.name, outcome(resp), time.Since(start))
		handler(resp)
	}()
}

func (r *RemoteResource) introspect(ctx context.Context, token string) *Response {
	endpoint, err := r.resolveEndpoint(ctx)
	if err != nil {
		return &Response{Err: fmt.Errorf("resolving introspection endpoint: %w", err)}
	}

	form := url.Values{"token": {token}}
	if r.tokenTypeHint != "" {
		form.Set("token_type_hint", r.tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Response{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	switch r.authMethod {
	case config.AuthMethodBasic:
		req.SetBasicAuth(r.clientID, r.clientSecret)
	case config.AuthMethodBearer:
		req.Header.Set("Authorization", "Bearer "+r.bearerToken)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return &Response{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return &Response{Err: err}
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		// An explicit active=false is the server's authoritative no. Any
		// other 2xx body, including one the policy cannot parse, is handed
		// over as a success for the policy to judge.
		var probe struct {
			Active *bool `json:"active"`
		}
		if err := json.Unmarshal(body, &probe); err == nil && probe.Active != nil && !*probe.Active {
			return &Response{Success: false, Payload: body, MediaType: "application/json"}
		}
		return &Response{Success: true, Payload: body, MediaType: "application/json"}
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		// The server was reached and said no.
		return &Response{Success: false, Payload: body, MediaType: "application/json"}
	default:
		return &Response{Err: fmt.Errorf("unexpected HTTP code %d for POST %s", res.StatusCode, endpoint)}
	}
}

// resolveEndpoint returns the introspection endpoint, discovering it from
// the authorization-server metadata document on first use when only a
// discovery URL was configured.
func (r *RemoteResource) resolveEndpoint(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoint != "" {
		return r.endpoint, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.discoveryURL, nil)
	if err != nil {
		return "", err
	}
	res, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP code %d for GET %s", res.StatusCode, r.discoveryURL)
	}

	var doc struct {
		IntrospectionEndpoint string `json:"introspection_endpoint"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return "", err
	}
	if doc.IntrospectionEndpoint == "" {
		return "", fmt.Errorf("metadata document %s has no introspection_endpoint", r.discoveryURL)
	}

	r.endpoint = doc.IntrospectionEndpoint
	logger.Info("Discovered introspection endpoint %s for resource %q", r.endpoint, r.name)
	return r.endpoint, nil
}
