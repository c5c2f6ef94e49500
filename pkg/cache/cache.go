// Package cache defines the store used to keep decoded database rows
// in memory between reads.
package cache

import (
	"context"
	"time"
)

// Cache keeps stored records keyed by "entity/id".
// Callers own invalidation: a write must Delete the record's key.
type Cache interface {
	// Get returns the record cached under key, or false on a miss or an expired entry.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set caches a record under key for at most ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete drops the record cached under key.
	Delete(ctx context.Context, key string) error

	// Clear drops every cached record.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns lookup and eviction counters, all zero when disabled.
	Metrics() *Metrics
}

// Metrics counts record cache activity.
type Metrics struct {
	Hits        uint64 // lookups served from cache
	Misses      uint64 // lookups that went to the database
	KeysAdded   uint64 // records cached under a new key
	KeysEvicted uint64 // records pushed out by the size limit
	KeysExpired uint64 // lookups that found an entry past its deadline
}

// HitRate returns Hits / (Hits + Misses), 0 before the first lookup.
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
