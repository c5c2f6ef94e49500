// Package relation implements to-one relations between stored records.
//
// A ToOne is embedded in a source record and points to a single target
// record by its ID (the foreign key). The target is resolved lazily from
// the storage session and cached together with the ID it was resolved for,
// so repeated reads do not touch storage while the foreign key is unchanged.
//
// Example:
//
//	order := &Order{}
//	order.Customer = relation.MustToOne(order, OrderCustomer)
//	order.Customer.SetTarget(customer)         // in memory only
//	err := order.Customer.SetAndPutTarget(ctx, customer) // also puts the order
package relation

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// ToOne manages a to-one relation from an owner record of type S to a target of type T.
//
// The cached (target, resolved ID) pair is guarded by a mutex and always read
// and written together. Storage calls are made outside that lock. Resolution of
// storage handles is memoized without locking and may run more than once on
// first use; all runs yield the same handles.
//
// Field-backed foreign keys are read from and written to the owner without
// locking. Concurrent SetTarget calls on a field-backed relation may leave the
// cached pair out of sync with the owner's field; callers that share an owner
// across goroutines must serialize writes themselves.
type ToOne[S any, T any] struct {
	owner   *S
	info    *RelationInfo[S, T]
	virtual bool

	boxes atomic.Pointer[boxes]
	field atomic.Pointer[fieldRef[S]]

	// virtual foreign key value
	targetID atomic.Uint64

	// set when a transient target must be put before the owner
	pendingPut atomic.Bool

	mu         sync.Mutex
	target     *T
	resolvedID uint64
}

// boxes holds the storage handles resolved for one relation instance.
type boxes struct {
	session   Session
	entityBox Box
	targetBox Box
	debug     bool
	logger    *slog.Logger
}

type fieldRef[S any] struct {
	acc FieldAccessor[S]
}

// NewToOne creates the relation for owner described by info.
func NewToOne[S any, T any](owner *S, info *RelationInfo[S, T]) (*ToOne[S, T], error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: no source record given (nil)", ErrInvalidArgument)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: no relation info given (nil)", ErrInvalidArgument)
	}
	r := &ToOne[S, T]{
		owner:   owner,
		info:    info,
		virtual: info.TargetIDProperty.Virtual,
	}
	if !r.virtual {
		if _, err := r.resolveFieldAccessor(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustToOne is like NewToOne but panics on error.
func MustToOne[S any, T any](owner *S, info *RelationInfo[S, T]) *ToOne[S, T] {
	r, err := NewToOne(owner, info)
	if err != nil {
		panic(err)
	}
	return r
}

// Owner returns the record this relation belongs to.
func (r *ToOne[S, T]) Owner() *S {
	return r.owner
}

// Info returns the relation descriptor.
func (r *ToOne[S, T]) Info() *RelationInfo[S, T] {
	return r.info
}

// Target returns the target record, resolving it from storage if the cached
// target does not match the current foreign key. A nil target with a nil
// error means the relation is empty or the target does not exist.
func (r *ToOne[S, T]) Target(ctx context.Context) (*T, error) {
	return r.TargetByID(ctx, r.TargetID())
}

// TargetByID is like Target but uses the given foreign key value instead of
// reading it from the owner. Field-backed entities use it to skip a field read.
func (r *ToOne[S, T]) TargetByID(ctx context.Context, targetID uint64) (*T, error) {
	r.mu.Lock()
	if r.resolvedID == targetID {
		target := r.target
		r.mu.Unlock()
		return target, nil
	}
	r.mu.Unlock()

	b, err := r.ensureBoxes(nil)
	if err != nil {
		return nil, err
	}

	// No lock while talking to storage
	record, err := b.targetBox.Get(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d for relation %s: %w", r.info.Target.Name, targetID, r.info.Name, err)
	}
	target, err := r.asTarget(record)
	if err != nil {
		return nil, err
	}

	r.setResolvedTarget(target, targetID)
	return target, nil
}

// CachedTarget returns the cached target without resolving it.
// The result may be stale if the foreign key changed since it was cached.
func (r *ToOne[S, T]) CachedTarget() *T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// IsResolved reports whether the cached target matches the current foreign key.
func (r *ToOne[S, T]) IsResolved() bool {
	return r.cachedID() == r.TargetID()
}

// IsResolvedAndNotNull reports whether the relation is resolved to a non-zero ID.
func (r *ToOne[S, T]) IsResolvedAndNotNull() bool {
	id := r.cachedID()
	return id != 0 && id == r.TargetID()
}

// IsNull reports whether the foreign key is 0 and no target is cached.
// An unresolved relation with a non-zero foreign key is not null.
func (r *ToOne[S, T]) IsNull() bool {
	return r.TargetID() == 0 && r.CachedTarget() == nil
}

// TargetID returns the foreign key value, 0 if the relation is empty.
func (r *ToOne[S, T]) TargetID() uint64 {
	if r.virtual {
		return r.targetID.Load()
	}
	id, ok := r.fieldAccessor().Get(r.owner)
	if !ok {
		return 0
	}
	return id
}

// SetTargetID sets the foreign key value without touching the cached target.
func (r *ToOne[S, T]) SetTargetID(targetID uint64) {
	if r.virtual {
		r.targetID.Store(targetID)
	} else {
		r.fieldAccessor().Set(r.owner, targetID)
	}
	if targetID != 0 {
		r.pendingPut.Store(false)
	}
}

// SetAndUpdateTargetID would write only the foreign key of the stored owner.
// Partial updates are not supported: the in-memory foreign key is changed,
// and ErrUnimplemented is returned. Put the owner to persist the change.
func (r *ToOne[S, T]) SetAndUpdateTargetID(ctx context.Context, targetID uint64) error {
	r.SetTargetID(targetID)
	if _, err := r.ensureBoxes(nil); err != nil {
		return err
	}
	return fmt.Errorf("%w: foreign key only update for relation %s", ErrUnimplemented, r.info.Name)
}

// SetTarget sets the foreign key to the ID of target and caches target.
// Nothing is written to storage. A transient target (ID 0) is put by the
// storage layer's insert pipeline when the owner is put.
func (r *ToOne[S, T]) SetTarget(target *T) {
	if target == nil {
		r.SetTargetID(0)
		r.clearResolved()
		return
	}
	targetID := r.info.Target.ID(target)
	r.pendingPut.Store(targetID == 0)
	r.SetTargetID(targetID)
	r.setResolvedTarget(target, targetID)
}

// SetAndPutTarget sets the target and puts the owner.
// If target has not been stored yet (ID 0), both records are put in one transaction.
func (r *ToOne[S, T]) SetAndPutTarget(ctx context.Context, target *T) error {
	b, err := r.ensureBoxes(target)
	if err != nil {
		return err
	}
	if target == nil {
		r.SetTargetID(0)
		r.clearResolved()
		return r.putOwner(ctx, b.entityBox)
	}

	targetID := b.targetBox.ID(target)
	if targetID == 0 {
		return r.SetAndPutTargetAlways(ctx, target)
	}
	r.SetTargetID(targetID)
	r.setResolvedTarget(target, targetID)
	return r.putOwner(ctx, b.entityBox)
}

// SetAndPutTargetAlways puts target and the owner in one transaction and links them.
// If the transaction fails, neither record is stored, but the cached target set
// inside the transaction is not rolled back.
func (r *ToOne[S, T]) SetAndPutTargetAlways(ctx context.Context, target *T) error {
	b, err := r.ensureBoxes(target)
	if err != nil {
		return err
	}
	if target == nil {
		r.SetTargetID(0)
		r.clearResolved()
		return r.putOwner(ctx, b.entityBox)
	}

	return b.session.RunInTx(ctx, func(ctx context.Context) error {
		targetID, err := b.targetBox.Put(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to put %s for relation %s: %w", r.info.Target.Name, r.info.Name, err)
		}
		r.SetTargetID(targetID)
		r.setResolvedTarget(target, targetID)
		return r.putOwner(ctx, b.entityBox)
	})
}

// RequiresDeferredTargetPut reports whether a transient target was set and must
// be put before the owner is written. Used by the storage insert pipeline.
func (r *ToOne[S, T]) RequiresDeferredTargetPut() bool {
	return r.pendingPut.Load() && r.CachedTarget() != nil && r.TargetID() == 0
}

// PerformDeferredTargetPut puts the cached target through cursor and sets the
// foreign key to its new ID. Used by the storage insert pipeline before the
// owner row is written.
func (r *ToOne[S, T]) PerformDeferredTargetPut(ctx context.Context, cursor Cursor) error {
	r.pendingPut.Store(false)
	target := r.CachedTarget()
	if target == nil {
		return nil
	}
	targetID, err := cursor.Put(ctx, target)
	if err != nil {
		r.pendingPut.Store(true)
		return fmt.Errorf("failed to put pending %s for relation %s: %w", r.info.Target.Name, r.info.Name, err)
	}
	r.SetTargetID(targetID)
	r.setResolvedTarget(target, targetID)
	return nil
}

// PropertyName returns the foreign key property name.
func (r *ToOne[S, T]) PropertyName() string {
	return r.info.TargetIDProperty.Name
}

// IsVirtual reports whether the foreign key lives only inside the relation.
func (r *ToOne[S, T]) IsVirtual() bool {
	return r.virtual
}

// TargetEntity returns the target entity name.
func (r *ToOne[S, T]) TargetEntity() string {
	return r.info.Target.Name
}

// Equal reports whether both relations use the same descriptor and foreign key.
// Cached targets are not compared.
func (r *ToOne[S, T]) Equal(other *ToOne[S, T]) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.info == other.info && r.TargetID() == other.TargetID()
}

// Hash returns a hash of the foreign key.
func (r *ToOne[S, T]) Hash() uint32 {
	id := r.TargetID()
	return uint32(id ^ id>>32)
}

// String returns a string representation of the relation
// Format: source.property->target#id
func (r *ToOne[S, T]) String() string {
	return fmt.Sprintf("%s#%d", r.info, r.TargetID())
}

func (r *ToOne[S, T]) putOwner(ctx context.Context, entityBox Box) error {
	if _, err := entityBox.Put(ctx, r.owner); err != nil {
		return fmt.Errorf("failed to put %s for relation %s: %w", r.info.Source.Name, r.info.Name, err)
	}
	return nil
}

// ensureBoxes resolves the storage handles from the owner's session, falling
// back to the target's session for owners that are not attached yet.
func (r *ToOne[S, T]) ensureBoxes(target *T) (*boxes, error) {
	session := sessionOf(any(r.owner))
	if b := r.boxes.Load(); b != nil && (session == nil || b.session == session) {
		return b, nil
	}
	if session == nil && target != nil {
		session = sessionOf(any(target))
	}
	if session == nil {
		return nil, fmt.Errorf("%w (relation %s)", ErrDetached, r.info.Name)
	}

	entityBox, err := session.Box(r.info.Source.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get box for %s: %w", r.info.Source.Name, err)
	}
	targetBox, err := session.Box(r.info.Target.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get box for %s: %w", r.info.Target.Name, err)
	}
	logger := session.Logger()
	if logger == nil {
		logger = slog.Default()
	}

	b := &boxes{
		session:   session,
		entityBox: entityBox,
		targetBox: targetBox,
		debug:     session.DebugRelations(),
		logger:    logger,
	}
	r.boxes.Store(b)
	return b, nil
}

func (r *ToOne[S, T]) fieldAccessor() FieldAccessor[S] {
	acc, err := r.resolveFieldAccessor()
	if err != nil {
		panic(err)
	}
	return acc
}

func (r *ToOne[S, T]) resolveFieldAccessor() (FieldAccessor[S], error) {
	if ref := r.field.Load(); ref != nil {
		return ref.acc, nil
	}
	acc := r.info.TargetIDProperty.Accessor
	if acc == nil {
		ownerType := reflect.TypeOf(r.owner).Elem()
		ra, err := reflectAccessorFor(ownerType, r.info.TargetIDProperty.Name)
		if err != nil {
			return nil, err
		}
		acc = reflectField[S]{acc: ra}
	}
	r.field.Store(&fieldRef[S]{acc: acc})
	return acc, nil
}

func (r *ToOne[S, T]) asTarget(record any) (*T, error) {
	if record == nil {
		return nil, nil
	}
	target, ok := record.(*T)
	if !ok {
		return nil, fmt.Errorf("relation %s: box %s returned %T, want %T", r.info.Name, r.info.Target.Name, record, (*T)(nil))
	}
	return target, nil
}

func (r *ToOne[S, T]) cachedID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvedID
}

// setResolvedTarget stores target and the ID it was resolved for as one unit.
func (r *ToOne[S, T]) setResolvedTarget(target *T, targetID uint64) {
	if b := r.boxes.Load(); b != nil && b.debug {
		b.logger.Debug("setting resolved to-one target",
			slog.String("relation", r.info.Name),
			slog.Bool("present", target != nil),
			slog.Uint64("target_id", targetID),
		)
	}
	r.mu.Lock()
	r.target = target
	r.resolvedID = targetID
	r.mu.Unlock()
}

func (r *ToOne[S, T]) clearResolved() {
	r.mu.Lock()
	r.target = nil
	r.resolvedID = 0
	r.mu.Unlock()
}
