package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/constants"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/oauth2"
)

// proxyStubResource answers introspections with a canned response from a
// separate goroutine, like the real providers do.
type proxyStubResource struct {
	mu    sync.Mutex
	calls int
	resp  oauth2.Response
}

func (s *proxyStubResource) Introspect(ctx context.Context, token string, handler oauth2.Handler) {
	s.mu.Lock()
	s.calls++
	resp := s.resp
	s.mu.Unlock()
	go handler(&resp)
}

func (s *proxyStubResource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func activeResource() *proxyStubResource {
	return &proxyStubResource{resp: oauth2.Response{
		Success: true,
		Payload: []byte(`{"client_id":"my-client-id","scope":"read"}`),
	}}
}

// capturedUpstream records what the upstream test server received.
type capturedUpstream struct {
	mu     sync.Mutex
	calls  int
	path   string
	header http.Header
}

func (c *capturedUpstream) record(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.path = r.URL.Path
	c.header = r.Header.Clone()
}

func (c *capturedUpstream) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *capturedUpstream) got() (string, http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.header
}

func newProxyFixture(t *testing.T, cfg *config.Config, resource oauth2.Resource) (*httptest.Server, *capturedUpstream) {
	t.Helper()

	captured := &capturedUpstream{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.record(r)
		io.WriteString(w, "upstream ok")
	}))
	t.Cleanup(upstream.Close)

	cfg.BaseURL = upstream.URL
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 5
	}
	if cfg.OAuth2.OAuthResource == "" {
		cfg.OAuth2.OAuthResource = "authorization-server"
	}

	registry := oauth2.NewRegistry()
	if resource != nil {
		registry.Register("authorization-server", resource)
	}

	proxy := httptest.NewServer(NewRouter(cfg, registry, nil))
	t.Cleanup(proxy.Close)
	return proxy, captured
}

func doRequest(t *testing.T, method, url, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

func TestProxyForwardsAuthorizedRequest(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{IdentityHeaders: true, StripAuthorization: true},
	}
	proxy, captured := newProxyFixture(t, cfg, activeResource())

	resp := doRequest(t, http.MethodGet, proxy.URL+"/orders", "tok-123")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body := readBody(t, resp); body != "upstream ok" {
		t.Errorf("body = %q, want the upstream response", body)
	}
	path, header := captured.got()
	if path != "/orders" {
		t.Errorf("upstream path = %q, want %q", path, "/orders")
	}
	if got := header.Get(constants.ClientIDHeader); got != "my-client-id" {
		t.Errorf("upstream client id header = %q, want %q", got, "my-client-id")
	}
	if got := header.Get("Authorization"); got != "" {
		t.Errorf("authorization header reached the upstream: %q", got)
	}
	if header.Get(constants.RequestIDHeader) == "" {
		t.Error("upstream request is missing the request id header")
	}
}

func TestProxyRejectsMissingToken(t *testing.T) {
	proxy, captured := newProxyFixture(t, &config.Config{}, activeResource())

	resp := doRequest(t, http.MethodGet, proxy.URL+"/orders", "")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	want := `Bearer realm="gravitee.io", error="invalid_request", error_description="No OAuth authorization header was supplied"`
	if got := resp.Header.Get("WWW-Authenticate"); got != want {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}
	if body := readBody(t, resp); body != "" {
		t.Errorf("body = %q, want an empty body", body)
	}
	if captured.callCount() != 0 {
		t.Error("a rejected request reached the upstream")
	}
}

func TestProxyForwardsRejectionPayload(t *testing.T) {
	resource := &proxyStubResource{resp: oauth2.Response{
		Success: false,
		Payload: []byte(`{"error":"invalid_token"}`),
	}}
	proxy, captured := newProxyFixture(t, &config.Config{}, resource)

	resp := doRequest(t, http.MethodGet, proxy.URL+"/orders", "expired-token")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q, want %q", got, "application/json")
	}
	if body := readBody(t, resp); body != `{"error":"invalid_token"}` {
		t.Errorf("body = %q, want the introspection payload forwarded verbatim", body)
	}
	// Trailing whitespace is trimmed by header parsing on the wire.
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer realm=gravitee.io" {
		t.Errorf("WWW-Authenticate = %q, want the minimal challenge", got)
	}
	if captured.callCount() != 0 {
		t.Error("a rejected request reached the upstream")
	}
}

func TestProxyServerUnavailable(t *testing.T) {
	resource := &proxyStubResource{resp: oauth2.Response{Err: errors.New("connection refused")}}
	proxy, _ := newProxyFixture(t, &config.Config{}, resource)

	resp := doRequest(t, http.MethodGet, proxy.URL+"/orders", "tok")

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if body := readBody(t, resp); body != "temporarily_unavailable" {
		t.Errorf("body = %q, want %q", body, "temporarily_unavailable")
	}
}

func TestProxyPublicPathSkipsPolicy(t *testing.T) {
	resource := &proxyStubResource{resp: oauth2.Response{Err: errors.New("must not be called")}}
	cfg := &config.Config{PublicPaths: []string{"/health"}}
	proxy, captured := newProxyFixture(t, cfg, resource)

	resp := doRequest(t, http.MethodGet, proxy.URL+"/health", "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resource.callCount() != 0 {
		t.Error("introspection ran for a public path")
	}
	if captured.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", captured.callCount())
	}
}

func TestProxyPathMapping(t *testing.T) {
	cfg := &config.Config{PathMapping: map[string]string{"/api": "/v2/api"}}
	proxy, captured := newProxyFixture(t, cfg, activeResource())

	resp := doRequest(t, http.MethodGet, proxy.URL+"/api", "tok")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if path, _ := captured.got(); path != "/v2/api" {
		t.Errorf("upstream path = %q, want %q", path, "/v2/api")
	}
}

func TestProxyMetadataEndpoint(t *testing.T) {
	cfg := &config.Config{
		Metadata: config.MetadataConfig{
			Enabled:              true,
			Resource:             "https://proxy.example.com",
			AuthorizationServers: []string{"https://as.example.com"},
		},
	}
	proxy, _ := newProxyFixture(t, cfg, activeResource())

	resp := doRequest(t, http.MethodGet, proxy.URL+"/.well-known/oauth-protected-resource", "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var doc protectedResourceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode metadata document: %v", err)
	}
	if doc.Resource != "https://proxy.example.com" {
		t.Errorf("resource = %q, want %q", doc.Resource, "https://proxy.example.com")
	}
	if len(doc.AuthorizationServers) != 1 || doc.AuthorizationServers[0] != "https://as.example.com" {
		t.Errorf("authorization servers = %v, want the configured list", doc.AuthorizationServers)
	}
}

func TestProxyCORS(t *testing.T) {
	cfg := &config.Config{
		CORSConfig: config.CORSConfig{
			AllowedOrigins: []string{"https://app.example.com"},
			AllowedMethods: []string{"GET", "POST"},
		},
	}
	proxy, _ := newProxyFixture(t, cfg, activeResource())

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
	}{
		{name: "preflight from allowed origin", method: http.MethodOptions, origin: "https://app.example.com", wantStatus: http.StatusNoContent},
		{name: "preflight from disallowed origin", method: http.MethodOptions, origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
		{name: "request from disallowed origin", method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, proxy.URL+"/orders", nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}
			req.Header.Set("Origin", tc.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusNoContent {
				if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tc.origin {
					t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tc.origin)
				}
			}
		})
	}
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := upstream.URL
	upstream.Close()

	cfg := &config.Config{
		BaseURL:        baseURL,
		TimeoutSeconds: 5,
		OAuth2:         config.OAuth2Config{OAuthResource: "authorization-server"},
	}
	registry := oauth2.NewRegistry()
	registry.Register("authorization-server", activeResource())
	proxy := httptest.NewServer(NewRouter(cfg, registry, nil))
	t.Cleanup(proxy.Close)

	resp := doRequest(t, http.MethodGet, proxy.URL+"/orders", "tok")

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestProxyMetricsEndpoint(t *testing.T) {
	handler, err := metrics.Register(nil)
	if err != nil {
		t.Fatalf("Failed to register metrics: %v", err)
	}

	cfg := &config.Config{
		BaseURL:        "http://localhost:9", // never reached
		TimeoutSeconds: 5,
		Metrics:        config.MetricsConfig{Enabled: true},
	}
	srv := httptest.NewServer(NewRouter(cfg, oauth2.NewRegistry(), handler))
	t.Cleanup(srv.Close)

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics", "")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
