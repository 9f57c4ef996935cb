package main

import (
	"fmt"
	"time"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/cache"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/oauth2"
)

// BuildRegistry constructs the configured introspection resources, wrapping
// each cache-enabled one with the shared result cache.
func BuildRegistry(cfg *config.Config, store cache.Client) (*oauth2.Registry, error) {
	registry := oauth2.NewRegistry()
	globalTimeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	for i := range cfg.Resources {
		rc := cfg.Resources[i]

		var resource oauth2.Resource
		switch rc.Type {
		case config.IntrospectionResource:
			resource = oauth2.NewRemoteResource(rc, globalTimeout)
		case config.JWTResource:
			resource = oauth2.NewJWKSResource(rc, globalTimeout)
		default:
			return nil, fmt.Errorf("resource %q: unknown type %q", rc.Name, rc.Type)
		}

		if rc.Cache {
			if store == nil {
				return nil, fmt.Errorf("resource %q requests caching but no cache is configured", rc.Name)
			}
			resource = oauth2.NewCachedResource(resource, store,
				time.Duration(cfg.Cache.TTLSeconds)*time.Second,
				time.Duration(cfg.Cache.NegativeTTLSeconds)*time.Second)
		}

		registry.Register(rc.Name, resource)
	}

	return registry, nil
}
