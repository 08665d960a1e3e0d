package cache

import (
	"sync"
	"time"
)

// TTLCache is a process-local map with per-entry expiry. Expired entries
// are dropped on read and, every purgeEvery writes, in one pass.
type TTLCache[V any] struct {
	mu     sync.Mutex
	m      map[string]ttlEntry[V]
	writes int
}

type ttlEntry[V any] struct {
	v   V
	exp time.Time // zero never expires
}

const purgeEvery = 256

func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{m: make(map[string]ttlEntry[V])}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if ok && !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.m, key)
		ok = false
	}
	if !ok {
		var zero V
		return zero, false
	}
	return e.v, true
}

func (c *TTLCache[V]) Set(key string, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = ttlEntry[V]{v: v, exp: exp}
	if c.writes++; c.writes%purgeEvery == 0 {
		c.purgeLocked(time.Now())
	}
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache[V]) purgeLocked(now time.Time) {
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
}
