package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
)

// protectedResourceMetadata is the document served under
// /.well-known/oauth-protected-resource, following RFC 9728.
type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

func metadataResource(cfg *config.Config) string {
	return cfg.Metadata.Resource
}

// metadataHandler serves the protected-resource metadata document.
func metadataHandler(cfg *config.Config) http.HandlerFunc {
	doc := protectedResourceMetadata{
		Resource:               cfg.Metadata.Resource,
		AuthorizationServers:   cfg.Metadata.AuthorizationServers,
		ScopesSupported:        cfg.Metadata.ScopesSupported,
		BearerMethodsSupported: []string{"header"},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			logger.Error("Writing metadata document: %v", err)
		}
	}
}
