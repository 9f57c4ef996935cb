package oauth2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/cache"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
)

// cachedEntry is the serialized form of an authoritative response.
type cachedEntry struct {
	Success   bool   `json:"success"`
	Payload   []byte `json:"payload,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// CachedResource decorates a Resource with result caching and request
// coalescing. Authoritative answers are cached, rejections under a shorter
// TTL; transport failures are never cached. Concurrent introspections of
// the same token share one inner call.
type CachedResource struct {
	inner       Resource
	store       cache.Client
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
}

func NewCachedResource(inner Resource, store cache.Client, ttl, negativeTTL time.Duration) *CachedResource {
	return &CachedResource{
		inner:       inner,
		store:       store,
		ttl:         ttl,
		negativeTTL: negativeTTL,
	}
}

// Introspect implements Resource.
func (c *CachedResource) Introspect(ctx context.Context, token string, handler Handler) {
	go func() {
		handler(c.introspect(ctx, token))
	}()
}

func (c *CachedResource) introspect(ctx context.Context, token string) *Response {
	key := cacheKey(token)

	if b, err := c.store.Get(ctx, key); err == nil {
		var entry cachedEntry
		if err := json.Unmarshal(b, &entry); err == nil {
			metrics.RecordCacheEvent(metrics.CacheHit)
			return &Response{Success: entry.Success, Payload: entry.Payload, MediaType: entry.MediaType}
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.Debug("Introspection cache read failed: %v", err)
	}
	metrics.RecordCacheEvent(metrics.CacheMiss)

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		resp := introspectSync(ctx, c.inner, token)
		if resp.Err == nil {
			c.storeResult(ctx, key, resp)
		}
		return resp, nil
	})
	return v.(*Response)
}

func (c *CachedResource) storeResult(ctx context.Context, key string, resp *Response) {
	ttl := c.ttl
	if !resp.Success {
		ttl = c.negativeTTL
	}
	b, err := json.Marshal(cachedEntry{Success: resp.Success, Payload: resp.Payload, MediaType: resp.MediaType})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, b, ttl); err != nil {
		logger.Debug("Introspection cache write failed: %v", err)
		return
	}
	metrics.RecordCacheEvent(metrics.CacheStore)
}

// introspectSync adapts the callback contract for callers that need the
// result in hand.
func introspectSync(ctx context.Context, r Resource, token string) *Response {
	ch := make(chan *Response, 1)
	r.Introspect(ctx, token, func(resp *Response) { ch <- resp })
	return <-ch
}

// cacheKey hashes the token so raw credentials never appear as cache keys.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
