package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
)

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(config.CacheConfig{Driver: "memcached"})
	if err == nil {
		t.Fatalf("Expected error for unknown driver")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: config.MemoryCacheDriver})
	if err != nil {
		t.Fatalf("Failed to build memory cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if _, err := c.Get(ctx, "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for absent key, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected value %q, got %q", "v", string(got))
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after delete, got %v", err)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: config.MemoryCacheDriver})
	if err != nil {
		t.Fatalf("Failed to build memory cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := c.Get(ctx, "short"); err != nil {
		t.Fatalf("Expected entry before expiry, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after expiry, got %v", err)
	}
}
