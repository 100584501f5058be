package sqlkit

import (
	"context"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores table metadata (primary keys and detected column types)
// between statements. Implementations may be backed by any key/value store
// (e.g. Redis, Memcached, in-memory). The cache is an optimization only: a
// Cache that never returns anything is valid.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// NopCache is a Cache that stores nothing.
type NopCache struct{}

// Get implements Cache.
func (NopCache) Get(context.Context, string) ([]byte, error) { return nil, nil }

// Set implements Cache.
func (NopCache) Set(context.Context, string, []byte) error { return nil }

// Delete implements Cache.
func (NopCache) Delete(context.Context, string) error { return nil }

// Clear implements Cache.
func (NopCache) Clear(context.Context) error { return nil }

// MemoryCache is an in-memory Cache safe for concurrent use.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key], nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	return nil
}

// Len returns the number of cached keys.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// cacheKey generates the cache key of a table property.
func cacheKey(table, property string) string {
	return table + "_" + property
}

// cacheLoad decodes the cached value of key into v. Cache failures are logged
// and reported as a miss.
func (c *Connection) cacheLoad(ctx context.Context, key string, v any) bool {
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return false
	}
	if b == nil {
		return false
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		c.logger.WarnContext(ctx, "cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

// cacheStore encodes v and stores it under key. Failures are logged only.
func (c *Connection) cacheStore(ctx context.Context, key string, v any) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, b); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}
