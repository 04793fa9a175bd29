package memcache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"serp_reviews/internal/adapters/observability"
)

type entry struct {
	val       []byte
	expiresAt time.Time
}

// Cache is an in-process LRU alternative to Redis for single-instance
// deployments and tests. Expiry is checked lazily on read; a full cache
// evicts least recently used entries regardless of TTL.
type Cache struct {
	c *lru.Cache[string, entry]
}

func New(size int) *Cache {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, entry](size)
	return &Cache{c: c}
}

func (m *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.c.Get(key)
	if !ok {
		observability.ObserveCache("memory", "miss")
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.c.Remove(key)
		observability.ObserveCache("memory", "miss")
		return nil, false, nil
	}
	observability.ObserveCache("memory", "hit")
	return e.val, true, nil
}

func (m *Cache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: val}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.c.Add(key, e)
	observability.ObserveCache("memory", "set")
	return nil
}

func (m *Cache) Ping(_ context.Context) error { return nil }
