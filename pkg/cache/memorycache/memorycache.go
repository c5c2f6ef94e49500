package memorycache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/asakaida/relbox/pkg/cache"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// entry wraps a cached value with its own deadline so Set can use a TTL
// shorter than the cache-wide default.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache implements an LRU cache with TTL support on top of golang-lru's expirable LRU.
type Cache struct {
	lru *expirable.LRU[string, entry]
	ttl time.Duration

	metrics *cacheMetrics
}

type cacheMetrics struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	keysAdded   atomic.Uint64
	keysEvicted atomic.Uint64
	keysExpired atomic.Uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries is the maximum number of cached items.
	// When this limit is exceeded, least recently used items are evicted.
	MaxEntries int

	// DefaultTTL is the default time-to-live for cached items.
	// Items expire after this duration.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	if config.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", config.MaxEntries)
	}
	if config.DefaultTTL <= 0 {
		return nil, fmt.Errorf("default TTL must be positive, got %s", config.DefaultTTL)
	}

	c := &Cache{ttl: config.DefaultTTL}
	if config.EnableMetrics {
		c.metrics = &cacheMetrics{}
	}

	c.lru = expirable.NewLRU[string, entry](config.MaxEntries, nil, config.DefaultTTL)

	return c, nil
}

// Get retrieves a value from cache.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	ent, ok := c.lru.Get(key)
	// Entries past their own deadline read as misses and are left for the
	// LRU to expire, so a concurrent Set of the key is never removed here.
	if ok && time.Now().After(ent.expiresAt) {
		if c.metrics != nil {
			c.metrics.keysExpired.Add(1)
		}
		ok = false
	}

	if c.metrics != nil {
		if ok {
			c.metrics.hits.Add(1)
		} else {
			c.metrics.misses.Add(1)
		}
	}
	if !ok {
		return nil, false
	}
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
// A TTL of zero or longer than the default uses the default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	added := !c.lru.Contains(key)
	evicted := c.lru.Add(key, entry{value: value, expiresAt: time.Now().Add(ttl)})

	if c.metrics != nil {
		if added {
			c.metrics.keysAdded.Add(1)
		}
		if evicted {
			c.metrics.keysEvicted.Add(1)
		}
	}
	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	return &cache.Metrics{
		Hits:        c.metrics.hits.Load(),
		Misses:      c.metrics.misses.Load(),
		KeysAdded:   c.metrics.keysAdded.Load(),
		KeysEvicted: c.metrics.keysEvicted.Load(),
		KeysExpired: c.metrics.keysExpired.Load(),
	}
}

// ResetMetrics resets cache statistics.
func (c *Cache) ResetMetrics() {
	if c.metrics == nil {
		return
	}

	c.metrics.hits.Store(0)
	c.metrics.misses.Store(0)
	c.metrics.keysAdded.Store(0)
	c.metrics.keysEvicted.Store(0)
	c.metrics.keysExpired.Store(0)
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	return c.lru.Len()
}
