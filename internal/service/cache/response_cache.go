package cache

import (
	"context"
	"encoding/json"
	"time"

	pkgcache "RegimeLab/pkg/cache"
)

// ResponseCache stores encoded engine responses keyed by endpoint and the
// normalized request. A hit is exact only when the request fully determines
// the response, i.e. the candles are inline and the endpoint has no side
// effects; callers decide which requests qualify.
type ResponseCache struct {
	store BytesCache
	ttl   time.Duration
}

// NewResponseCache returns a cache that is disabled when store is nil or
// ttl is not positive.
func NewResponseCache(store BytesCache, ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: store, ttl: ttl}
}

func (c *ResponseCache) Enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

// Key hashes the request after defaults were applied.
func (c *ResponseCache) Key(endpoint string, req any) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return pkgcache.GenerateKey("resp:"+endpoint, pkgcache.HashKey(b)), nil
}

func (c *ResponseCache) Lookup(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	b, ok, err := c.store.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return b, true
}

// Store saves body; failures are ignored since the cache is advisory.
func (c *ResponseCache) Store(ctx context.Context, key string, body []byte) {
	if !c.Enabled() {
		return
	}
	_ = c.store.SetBytes(ctx, key, body, c.ttl)
}
