package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process Cache for tests and single-node
// deployments without Redis. The mutex makes Consume atomic across
// goroutines; go-cache handles TTL expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries *gocache.Cache
	epochs  map[uint]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: gocache.New(gocache.NoExpiration, time.Minute),
		epochs:  make(map[uint]int64),
	}
}

func (c *MemoryCache) Register(_ context.Context, jti string, e Entry, ttl time.Duration) error {
	c.entries.Set(jti, e, ttl)
	return nil
}

func (c *MemoryCache) Consume(_ context.Context, jti string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(jti)
	if !ok {
		return nil, ErrNotFound
	}
	c.entries.Delete(jti)
	e := v.(Entry)
	return &e, nil
}

func (c *MemoryCache) Revoke(_ context.Context, jti string) error {
	c.entries.Delete(jti)
	return nil
}

func (c *MemoryCache) Epoch(_ context.Context, userID uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[userID], nil
}

func (c *MemoryCache) BumpEpoch(_ context.Context, userID uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[userID]++
	return c.epochs[userID], nil
}
