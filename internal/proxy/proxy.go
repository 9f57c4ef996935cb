package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/constants"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/oauth2"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/policy"
)

// NewRouter builds an http.ServeMux that routes
// * /.well-known/oauth-protected-resource to the metadata document
// * /metrics to the Prometheus handler when enabled
// * everything else through the policy chain to the upstream.
func NewRouter(cfg *config.Config, registry *oauth2.Registry, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	if cfg.Metadata.Enabled {
		mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := allowedOrigin(origin, cfg)
			if r.Method == http.MethodOptions {
				addCORSHeaders(w, cfg, allowed, r.Header.Get("Access-Control-Request-Headers"))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			addCORSHeaders(w, cfg, allowed, "")
			metadataHandler(cfg)(w, r)
		})
	}

	if cfg.Metrics.Enabled && metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	mux.HandleFunc("/", buildProxyHandler(cfg, registry))

	return mux
}

func buildProxyHandler(cfg *config.Config, registry *oauth2.Registry) http.HandlerFunc {
	// Parse the upstream base URL up front
	upstream, err := url.Parse(cfg.BaseURL)
	if err != nil {
		logger.Error("Invalid upstream base URL: %v", err)
		panic(err) // Fatal error that prevents startup
	}

	publicPaths := make(map[string]bool)
	for _, path := range cfg.PublicPaths {
		publicPaths[path] = true
	}

	// The policy is stateless and shared; the chain is built per request.
	oauthPolicy := policy.NewOAuth2(cfg.OAuth2)

	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := allowedOrigin(origin, cfg)
		// Handle OPTIONS
		if r.Method == http.MethodOptions {
			if allowed == "" {
				logger.Warn("Preflight request from disallowed origin: %s", origin)
				http.Error(w, "CORS origin not allowed", http.StatusForbidden)
				return
			}
			addCORSHeaders(w, cfg, allowed, r.Header.Get("Access-Control-Request-Headers"))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed == "" {
			logger.Warn("Request from disallowed origin: %s for %s", origin, r.URL.Path)
			http.Error(w, "CORS origin not allowed", http.StatusForbidden)
			return
		}

		// Add CORS headers to all responses
		addCORSHeaders(w, cfg, allowed, "")

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		requestID := uuid.NewString()
		sw.Header().Set(constants.RequestIDHeader, requestID)

		ec := policy.NewExecutionContext(requestID, registry)

		if !publicPaths[r.URL.Path] {
			chain := policy.NewPolicyChain(ec, oauthPolicy)
			chain.Execute(sw, r)
			allowed, result := chain.Wait()
			if !allowed {
				writeResult(sw, result)
				metrics.RecordRequest(r.Method, sw.status, time.Since(start))
				logger.Debug("Request %s rejected with %d", requestID, sw.status)
				return
			}
		}

		modifyUpstreamRequest(r, ec, cfg.Upstream, requestID)

		// Build the reverse proxy
		rp := &httputil.ReverseProxy{
			Director: func(req *http.Request) {
				// Path rewriting if needed
				mapped := r.URL.Path
				if rewrite, ok := cfg.PathMapping[r.URL.Path]; ok {
					mapped = rewrite
				}
				basePath := strings.TrimRight(upstream.Path, "/")
				req.URL.Scheme = upstream.Scheme
				req.URL.Host = upstream.Host
				req.URL.Path = basePath + mapped
				req.URL.RawQuery = r.URL.RawQuery
				req.Host = upstream.Host

				cleanHeaders := http.Header{}
				for k, v := range r.Header {
					// Skip hop-by-hop headers
					if skipHeader(k) {
						continue
					}
					// Set only the first value to avoid duplicates
					cleanHeaders.Set(k, v[0])
				}
				req.Header = cleanHeaders

				logger.Debug("%s -> %s%s", r.URL.Path, req.URL.Host, req.URL.Path)
			},
			ModifyResponse: func(resp *http.Response) error {
				logger.Debug("Response from %s%s: %d", resp.Request.URL.Host, resp.Request.URL.Path, resp.StatusCode)
				if resp.StatusCode == http.StatusUnauthorized && cfg.Metadata.Enabled {
					resp.Header.Set(
						"WWW-Authenticate",
						`Bearer resource_metadata="`+metadataResource(cfg)+`/.well-known/oauth-protected-resource"`,
					)
					resp.Header.Set("Access-Control-Expose-Headers", "WWW-Authenticate")
				}

				resp.Header.Del("Access-Control-Allow-Origin")
				return nil
			},
			ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
				logger.Error("Error proxying: %v", err)
				http.Error(rw, "Bad Gateway", http.StatusBadGateway)
			},
			FlushInterval: -1, // immediate flush for streaming upstreams
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
		rp.ServeHTTP(sw, r.WithContext(ctx))

		metrics.RecordRequest(r.Method, sw.status, time.Since(start))
	}
}

// writeResult renders a chain rejection onto the wire.
func writeResult(w http.ResponseWriter, result policy.Result) {
	if result.Body != nil {
		if result.ContentType != "" {
			w.Header().Set("Content-Type", result.ContentType)
		}
		w.WriteHeader(result.Status)
		if _, err := w.Write(result.Body); err != nil {
			logger.Debug("Writing rejection body: %v", err)
		}
		return
	}
	if result.Message != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(result.Status)
		io.WriteString(w, result.Message)
		return
	}
	w.WriteHeader(result.Status)
}

// statusWriter records the status code written to the client.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func allowedOrigin(origin string, cfg *config.Config) string {
	origins := cfg.CORSConfig.AllowedOrigins
	if len(origins) == 0 {
		return "*"
	}
	if origin == "" {
		return origins[0] // Default to first allowed origin
	}
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return allowed
		}
	}
	return ""
}

// addCORSHeaders adds configurable CORS headers
func addCORSHeaders(w http.ResponseWriter, cfg *config.Config, allowedOrigin, requestHeaders string) {
	w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
	if len(cfg.CORSConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.CORSConfig.AllowedMethods, ", "))
	}
	w.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate")
	if requestHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
	} else if len(cfg.CORSConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.CORSConfig.AllowedHeaders, ", "))
	}
	if cfg.CORSConfig.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Vary", "Origin")
}

func skipHeader(h string) bool {
	switch strings.ToLower(h) {
	case "connection", "keep-alive", "transfer-encoding", "upgrade", "proxy-authorization", "proxy-connection", "te", "trailer":
		return true
	}
	return false
}
