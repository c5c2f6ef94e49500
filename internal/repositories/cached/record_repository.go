package cached

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/relbox/internal/entities"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/asakaida/relbox/pkg/cache"
	"go.uber.org/multierr"
)

// CachedRecordRepository is a read-through cache in front of another RecordRepository.
// Reads inside a transaction bypass the cache; writes invalidate the record
// immediately and again once the surrounding transaction commits.
//
// Every invalidation bumps a per-key generation. A read only fills the cache
// if no invalidation of its key happened while it was loading the record.
type CachedRecordRepository struct {
	inner       repositories.RecordRepository
	cache       cache.Cache
	ttl         time.Duration
	observer    func(hit bool)
	generations sync.Map // map[string]*atomic.Uint64
}

// Option configures a CachedRecordRepository
type Option func(*CachedRecordRepository)

// WithObserver reports every cache lookup (e.g., to a metrics recorder)
func WithObserver(fn func(hit bool)) Option {
	return func(r *CachedRecordRepository) {
		r.observer = fn
	}
}

// NewCachedRecordRepository wraps inner with c
func NewCachedRecordRepository(inner repositories.RecordRepository, c cache.Cache, ttl time.Duration, opts ...Option) repositories.RecordRepository {
	r := &CachedRecordRepository{inner: inner, cache: c, ttl: ttl}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get retrieves a record, from cache when possible
func (r *CachedRecordRepository) Get(ctx context.Context, entity string, id uint64) (*entities.StoredRecord, error) {
	if repositories.InTx(ctx) {
		return r.inner.Get(ctx, entity, id)
	}

	key := entities.RecordKey(entity, id)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if record, ok := cached.(*entities.StoredRecord); ok {
			r.observe(true)
			return clone(record), nil
		}
	}
	r.observe(false)

	gen := r.generation(key)
	before := gen.Load()
	record, err := r.inner.Get(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if gen.Load() != before {
		return record, nil
	}
	// Cache errors only cost a future miss
	_ = r.cache.Set(ctx, key, clone(record), r.ttl)
	if gen.Load() != before {
		// A write invalidated the key between the check and the Set
		_ = r.cache.Delete(ctx, key)
	}
	return record, nil
}

// NextID allocates the next record ID of an entity
func (r *CachedRecordRepository) NextID(ctx context.Context, entity string) (uint64, error) {
	return r.inner.NextID(ctx, entity)
}

// Upsert writes the record and invalidates its cache entry
func (r *CachedRecordRepository) Upsert(ctx context.Context, record *entities.StoredRecord) error {
	if err := r.inner.Upsert(ctx, record); err != nil {
		return err
	}
	r.invalidate(ctx, record.Key())
	return nil
}

// Delete removes the record and invalidates its cache entry
func (r *CachedRecordRepository) Delete(ctx context.Context, entity string, id uint64) (bool, error) {
	deleted, err := r.inner.Delete(ctx, entity, id)
	if err != nil {
		return false, err
	}
	r.invalidate(ctx, entities.RecordKey(entity, id))
	return deleted, nil
}

// Count returns the number of records of an entity
func (r *CachedRecordRepository) Count(ctx context.Context, entity string) (int, error) {
	return r.inner.Count(ctx, entity)
}

// WithTx runs fn in a transaction of the wrapped repository
func (r *CachedRecordRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.inner.WithTx(ctx, fn)
}

// Close closes the wrapped repository and the cache
func (r *CachedRecordRepository) Close() error {
	return multierr.Combine(r.inner.Close(), r.cache.Close())
}

// invalidate bumps the key's generation before deleting the entry, so a
// concurrent read either sees the new generation or has its Set removed.
func (r *CachedRecordRepository) invalidate(ctx context.Context, key string) {
	gen := r.generation(key)
	gen.Add(1)
	_ = r.cache.Delete(ctx, key)
	if repositories.InTx(ctx) {
		repositories.AfterCommit(ctx, func() {
			gen.Add(1)
			_ = r.cache.Delete(context.Background(), key)
		})
	}
}

func (r *CachedRecordRepository) generation(key string) *atomic.Uint64 {
	if v, ok := r.generations.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := r.generations.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (r *CachedRecordRepository) observe(hit bool) {
	if r.observer != nil {
		r.observer(hit)
	}
}

func clone(record *entities.StoredRecord) *entities.StoredRecord {
	c := *record
	c.Data = append([]byte(nil), record.Data...)
	if record.Links != nil {
		c.Links = make(map[string]uint64, len(record.Links))
		for k, v := range record.Links {
			c.Links[k] = v
		}
	}
	return &c
}
