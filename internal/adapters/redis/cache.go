package redisad

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"serp_reviews/internal/adapters/observability"
)

// Cache stores pre-serialized response bodies so a fallback read can be
// served byte for byte. Entries expire via TTL only; nothing deletes them.
type Cache struct{ c *redis.Client }

func New(addr, pass string, db int) *Cache {
	return &Cache{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func (r *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	observability.ObserveCache("redis", "hit")
	return v, true, nil
}

func (r *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, key, val, ttl).Err()
}

func (r *Cache) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}
