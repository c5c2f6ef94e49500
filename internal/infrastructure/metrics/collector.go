package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/relbox/pkg/cache"
	"github.com/asakaida/relbox/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the storage session.
type Collector struct {
	// Box operation metrics, keyed "op/entity" (e.g., "get/customer")
	operations sync.Map // map[string]*uint64
	errors     sync.Map // map[string]*uint64
	duration   sync.Map // map[string]*durationValue

	deferredPuts sync.Map // map[string]*uint64 - target entity -> count

	txCommitted atomic.Uint64
	txFailed    atomic.Uint64

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds record cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	Evictions   uint64
}

// StoreMetrics holds box and transaction metrics.
type StoreMetrics struct {
	OperationCounts      map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
	DeferredPuts         map[string]uint64
	TxCommitted          uint64
	TxFailed             uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// OperationKey returns the key used for per-entity operation counters.
func OperationKey(op, entity string) string {
	return op + "/" + entity
}

// RecordOperation records a box operation.
func (c *Collector) RecordOperation(op, entity string) {
	counter := c.getOrCreateCounter(&c.operations, OperationKey(op, entity))
	atomic.AddUint64(counter, 1)
}

// RecordError records a failed box operation.
func (c *Collector) RecordError(op, entity string) {
	counter := c.getOrCreateCounter(&c.errors, OperationKey(op, entity))
	atomic.AddUint64(counter, 1)
}

// RecordDuration records the duration of a box operation in seconds.
func (c *Collector) RecordDuration(op, entity string, durationSeconds float64) {
	val, _ := c.duration.LoadOrStore(OperationKey(op, entity), &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordDeferredPut records a transient relation target put ahead of its owner.
func (c *Collector) RecordDeferredPut(entity string) {
	counter := c.getOrCreateCounter(&c.deferredPuts, entity)
	atomic.AddUint64(counter, 1)
}

// RecordTx records the outcome of a top-level transaction.
func (c *Collector) RecordTx(committed bool) {
	if committed {
		c.txCommitted.Add(1)
	} else {
		c.txFailed.Add(1)
	}
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
	}

	return result
}

// GetStoreMetrics returns current box and transaction metrics.
func (c *Collector) GetStoreMetrics() *StoreMetrics {
	result := &StoreMetrics{
		OperationCounts:      loadCounters(&c.operations),
		ErrorCounts:          loadCounters(&c.errors),
		TotalDurationSeconds: make(map[string]float64),
		DeferredPuts:         loadCounters(&c.deferredPuts),
		TxCommitted:          c.txCommitted.Load(),
		TxFailed:             c.txFailed.Load(),
	}

	c.duration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

func loadCounters(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
