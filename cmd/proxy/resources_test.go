package main

import (
	"testing"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/cache"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
)

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{
		TimeoutSeconds: 15,
		Resources: []config.ResourceConfig{
			{Name: "remote", Type: config.IntrospectionResource, IntrospectionEndpoint: "https://as.example.com/introspect"},
			{Name: "local", Type: config.JWTResource, JWKSURL: "https://as.example.com/jwks"},
		},
	}

	registry, err := BuildRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	for _, name := range []string{"remote", "local"} {
		if registry.Lookup(name) == nil {
			t.Errorf("resource %q missing from registry", name)
		}
	}
	if registry.Lookup("unknown") != nil {
		t.Error("unexpected resource for unknown name")
	}
}

func TestBuildRegistryCachedResource(t *testing.T) {
	store, err := cache.New(config.CacheConfig{Driver: config.MemoryCacheDriver})
	if err != nil {
		t.Fatalf("Failed to build cache: %v", err)
	}
	defer store.Close()

	cfg := &config.Config{
		TimeoutSeconds: 15,
		Cache:          config.CacheConfig{TTLSeconds: 60, NegativeTTLSeconds: 10},
		Resources: []config.ResourceConfig{
			{
				Name:                  "remote",
				Type:                  config.IntrospectionResource,
				IntrospectionEndpoint: "https://as.example.com/introspect",
				Cache:                 true,
			},
		},
	}

	if _, err := BuildRegistry(cfg, store); err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}

	if _, err := BuildRegistry(cfg, nil); err == nil {
		t.Error("expected an error when caching is requested without a cache")
	}
}

func TestBuildRegistryUnknownType(t *testing.T) {
	cfg := &config.Config{
		Resources: []config.ResourceConfig{{Name: "bad", Type: "saml"}},
	}
	if _, err := BuildRegistry(cfg, nil); err == nil {
		t.Error("expected an error for an unknown resource type")
	}
}
