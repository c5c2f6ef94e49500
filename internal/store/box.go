package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/asakaida/relbox/internal/entities"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/asakaida/relbox/pkg/relation"
	"github.com/goccy/go-json"
)

// Box operation names reported to the Recorder
const (
	OpGet    = "get"
	OpPut    = "put"
	OpRemove = "remove"
	OpFetch  = "fetch" // Get through the untyped box, i.e. relation target resolution
)

// Box is the typed collection of one entity.
type Box[T any] struct {
	store *Store
	info  *relation.EntityInfo[T]
	init  func(*T)
}

// EntityOption configures a registered entity.
type EntityOption[T any] func(*Box[T])

// WithInit sets a hook run on every record decoded from storage, before it
// is returned. Use it to create the record's relations.
func WithInit[T any](fn func(*T)) EntityOption[T] {
	return func(b *Box[T]) {
		b.init = fn
	}
}

// Register registers entity T with s and returns its box.
func Register[T any](s *Store, info *relation.EntityInfo[T], opts ...EntityOption[T]) (*Box[T], error) {
	if info == nil {
		return nil, fmt.Errorf("%w: entity info is required", relation.ErrInvalidArgument)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entity info: %w", err)
	}
	if info.SetID == nil {
		return nil, fmt.Errorf("invalid entity info: entity %s: ID setter is required", info.Name)
	}

	b := &Box[T]{store: s, info: info}
	for _, opt := range opts {
		opt(b)
	}
	if err := s.register(info.Name, typeOf[T](), anyBox[T]{b}, b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](s *Store, info *relation.EntityInfo[T], opts ...EntityOption[T]) *Box[T] {
	b, err := Register(s, info, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// BoxFor returns the box registered for T.
func BoxFor[T any](s *Store) (*Box[T], error) {
	typ := typeOf[T]()
	s.mu.RLock()
	b, ok := s.typed[typ]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type %s", ErrUnknownEntity, typ)
	}
	return b.(*Box[T]), nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Name returns the entity name.
func (b *Box[T]) Name() string {
	return b.info.Name
}

// ID returns the ID of record, 0 for transient records.
func (b *Box[T]) ID(record *T) uint64 {
	return b.info.ID(record)
}

// Attach binds record to the store without writing it.
func (b *Box[T]) Attach(record *T) {
	if record != nil {
		b.store.attach(any(record))
	}
}

// Get returns the record with the given ID, or nil if it does not exist.
func (b *Box[T]) Get(ctx context.Context, id uint64) (*T, error) {
	return b.get(ctx, id, OpGet)
}

func (b *Box[T]) get(ctx context.Context, id uint64, op string) (record *T, err error) {
	if b.store.closed.Load() {
		return nil, ErrClosed
	}
	if id == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() { b.store.recorder.ObserveOperation(op, b.info.Name, start, err) }()

	stored, err := b.store.repo.Get(ctx, b.info.Name, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d: %w", b.info.Name, id, err)
	}
	return b.decode(stored)
}

func (b *Box[T]) decode(stored *entities.StoredRecord) (*T, error) {
	record := new(T)
	if err := json.Unmarshal(stored.Data, record); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", stored, err)
	}
	b.info.SetID(record, stored.ID)
	if b.init != nil {
		b.init(record)
	}

	for _, link := range linksOf(record) {
		if link.IsVirtual() {
			link.SetTargetID(stored.Link(link.PropertyName()))
		}
	}

	b.store.attach(any(record))
	return record, nil
}

// Put inserts or updates record and returns its ID. A transient record (ID 0)
// gets the next ID of its entity, which is also set on record.
//
// Transient relation targets set through ToOne.SetTarget are put first, in
// the same transaction as record.
func (b *Box[T]) Put(ctx context.Context, record *T) (id uint64, err error) {
	if b.store.closed.Load() {
		return 0, ErrClosed
	}
	if record == nil {
		return 0, fmt.Errorf("%w: cannot put nil %s", relation.ErrInvalidArgument, b.info.Name)
	}
	start := time.Now()
	defer func() { b.store.recorder.ObserveOperation(OpPut, b.info.Name, start, err) }()

	links := linksOf(record)
	for _, link := range links {
		if link.RequiresDeferredTargetPut() {
			err = b.store.RunInTx(ctx, func(ctx context.Context) error {
				var err error
				id, err = b.put(ctx, record, links)
				return err
			})
			return id, err
		}
	}
	return b.put(ctx, record, links)
}

func (b *Box[T]) put(ctx context.Context, record *T, links []relation.Link) (uint64, error) {
	for _, link := range links {
		if !link.RequiresDeferredTargetPut() {
			continue
		}
		cursor, err := b.store.Box(link.TargetEntity())
		if err != nil {
			return 0, err
		}
		if err := link.PerformDeferredTargetPut(ctx, cursor); err != nil {
			return 0, err
		}
		b.store.recorder.ObserveDeferredPut(link.TargetEntity())
	}

	var virtual map[string]uint64
	for _, link := range links {
		if !link.IsVirtual() {
			continue
		}
		if targetID := link.TargetID(); targetID != 0 {
			if virtual == nil {
				virtual = make(map[string]uint64)
			}
			virtual[link.PropertyName()] = targetID
		}
	}

	id := b.info.GetID(record)
	assigned := id == 0
	if assigned {
		next, err := b.store.repo.NextID(ctx, b.info.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to put %s: %w", b.info.Name, err)
		}
		id = next
		b.info.SetID(record, id)
	}

	data, err := json.Marshal(record)
	if err != nil {
		if assigned {
			b.info.SetID(record, 0)
		}
		return 0, fmt.Errorf("failed to encode %s: %w", b.info.Name, err)
	}

	stored := &entities.StoredRecord{Entity: b.info.Name, ID: id, Data: data, Links: virtual}
	if err := b.store.repo.Upsert(ctx, stored); err != nil {
		if assigned {
			b.info.SetID(record, 0)
		}
		return 0, fmt.Errorf("failed to put %s: %w", b.info.Name, err)
	}

	b.store.attach(any(record))
	return id, nil
}

// Remove deletes the record with the given ID and reports whether it existed.
func (b *Box[T]) Remove(ctx context.Context, id uint64) (removed bool, err error) {
	if b.store.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()
	defer func() { b.store.recorder.ObserveOperation(OpRemove, b.info.Name, start, err) }()

	removed, err = b.store.repo.Delete(ctx, b.info.Name, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s %d: %w", b.info.Name, id, err)
	}
	return removed, nil
}

// Count returns the number of stored records.
func (b *Box[T]) Count(ctx context.Context) (int, error) {
	if b.store.closed.Load() {
		return 0, ErrClosed
	}
	n, err := b.store.repo.Count(ctx, b.info.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", b.info.Name, err)
	}
	return n, nil
}

// linksOf returns the relations of record, skipping relations that were never created.
func linksOf(record any) []relation.Link {
	holder, ok := record.(relation.LinkHolder)
	if !ok {
		return nil
	}
	all := holder.RelationLinks()
	links := all[:0:0]
	for _, link := range all {
		if link == nil {
			continue
		}
		if v := reflect.ValueOf(link); v.Kind() == reflect.Pointer && v.IsNil() {
			continue
		}
		links = append(links, link)
	}
	return links
}

// anyBox adapts a typed box to relation.Box.
type anyBox[T any] struct {
	b *Box[T]
}

func (a anyBox[T]) Get(ctx context.Context, id uint64) (any, error) {
	record, err := a.b.get(ctx, id, OpFetch)
	if err != nil || record == nil {
		// Avoid a non-nil interface holding a nil *T
		return nil, err
	}
	return record, nil
}

func (a anyBox[T]) Put(ctx context.Context, record any) (uint64, error) {
	typed, ok := record.(*T)
	if !ok {
		return 0, fmt.Errorf("%w: box %s cannot store %T", relation.ErrInvalidArgument, a.b.info.Name, record)
	}
	return a.b.Put(ctx, typed)
}

func (a anyBox[T]) ID(record any) uint64 {
	typed, ok := record.(*T)
	if !ok {
		return 0
	}
	return a.b.ID(typed)
}
