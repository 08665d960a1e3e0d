package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisCacheKeysArePrefixed(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	c := newRedisCache(client, "rl")
	defer c.Close()
	if got := c.key("job:1"); got != "rl:job:1" {
		t.Fatalf("expected rl:job:1, got %s", got)
	}
}

func TestRedisCacheUnlockWithoutOwnershipIsNoop(t *testing.T) {
	// no server behind this address: a network call would fail
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	c := newRedisCache(client, "rl")
	defer c.Close()
	if err := c.Unlock(context.Background(), "job:lock:1"); err != nil {
		t.Fatalf("unlock of a lock never taken must not reach redis: %v", err)
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := defaultRedisConfig()
	for _, opt := range []RedisOption{
		WithRedisAddr("cache:6380"),
		WithRedisAuth("secret", 2),
		WithRedisPool(0, 1, 0),
		WithRedisPrefix(""),
	} {
		opt(cfg)
	}
	if cfg.Addr != "cache:6380" || cfg.DB != 2 || cfg.Password != "secret" {
		t.Fatalf("options not applied: %+v", cfg)
	}
	if cfg.PoolSize != 10 || cfg.MinIdleConns != 1 || cfg.Prefix != "regimelab" {
		t.Fatalf("zero values must keep defaults: %+v", cfg)
	}
}
