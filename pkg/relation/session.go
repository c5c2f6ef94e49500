package relation

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Session is the storage context a record is attached to.
// It hands out collection handles and runs transactions.
type Session interface {
	// Box returns the collection handle for the named entity.
	Box(entity string) (Box, error)

	// RunInTx executes fn atomically. Calls nested inside fn join the same transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// DebugRelations reports whether relation cache writes should be logged.
	DebugRelations() bool

	// Logger returns the session logger.
	Logger() *slog.Logger
}

// Cursor writes records of one entity. The insert pipeline hands a cursor
// to PerformDeferredTargetPut so pending targets join the owner's transaction.
type Cursor interface {
	// Put inserts or updates record and returns its ID.
	Put(ctx context.Context, record any) (uint64, error)
}

// Box is an untyped collection handle for one entity.
type Box interface {
	Cursor

	// Get returns the record with the given ID, or nil if it does not exist.
	// ID 0 is never stored and always yields nil.
	Get(ctx context.Context, id uint64) (any, error)

	// ID returns the identifier of record, 0 for transient records.
	ID(record any) uint64
}

// Attachable is implemented by records that can carry a storage session.
type Attachable interface {
	// Session returns the attached session, or nil for detached records.
	Session() Session
}

// Attachment records the session a record is attached to.
// Embed it in entity structs to make them Attachable.
type Attachment struct {
	session atomic.Pointer[sessionRef]
}

type sessionRef struct {
	s Session
}

// Attach binds the record to s.
func (a *Attachment) Attach(s Session) {
	if s == nil {
		a.Detach()
		return
	}
	a.session.Store(&sessionRef{s: s})
}

// Detach removes the session binding.
func (a *Attachment) Detach() {
	a.session.Store(nil)
}

// IsAttached reports whether a session is bound.
func (a *Attachment) IsAttached() bool {
	return a.session.Load() != nil
}

// Session returns the bound session, or nil.
func (a *Attachment) Session() Session {
	ref := a.session.Load()
	if ref == nil {
		return nil
	}
	return ref.s
}

// sessionOf returns the session attached to record, or nil.
func sessionOf(record any) Session {
	if record == nil {
		return nil
	}
	if a, ok := record.(Attachable); ok {
		return a.Session()
	}
	return nil
}

// Link is the untyped view of a to-one relation used by storage engines
// to persist foreign keys and run the insert pipeline.
type Link interface {
	// PropertyName returns the foreign key property name.
	PropertyName() string

	// IsVirtual reports whether the foreign key is stored only inside the relation.
	IsVirtual() bool

	// TargetEntity returns the target entity name.
	TargetEntity() string

	// TargetID returns the current foreign key value.
	TargetID() uint64

	// SetTargetID sets the foreign key value.
	SetTargetID(id uint64)

	// RequiresDeferredTargetPut reports whether a transient target must be put before the owner.
	RequiresDeferredTargetPut() bool

	// PerformDeferredTargetPut puts the cached target through cursor and adopts its new ID.
	PerformDeferredTargetPut(ctx context.Context, cursor Cursor) error
}

// LinkHolder is implemented by records that own to-one relations.
type LinkHolder interface {
	RelationLinks() []Link
}
