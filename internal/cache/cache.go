// Package cache provides the shared result cache with memory and redis backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
)

// ErrMiss is returned by Get when the key is not present.
var ErrMiss = errors.New("cache: key not found")

// Client defines the cache operations used by the proxy.
type Client interface {
	// Get retrieves a value. Returns ErrMiss if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl means the entry does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// New builds a cache client for the configured driver.
func New(cfg config.CacheConfig) (Client, error) {
	switch cfg.Driver {
	case config.RedisCacheDriver:
		return newRedis(cfg.Redis), nil
	case config.MemoryCacheDriver, "":
		return newMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
