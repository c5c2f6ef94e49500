package repositories

import (
	"context"
	"errors"

	"github.com/asakaida/relbox/internal/entities"
)

var (
	// ErrRecordNotFound is returned when no record exists for an entity and ID
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflict is returned when a write collides with a concurrent one
	ErrConflict = errors.New("record write conflict")
)

// RecordRepository defines the interface for record data access
// Every method joins the transaction carried by ctx, if any (see RunInTx).
type RecordRepository interface {
	// Get retrieves a record, ErrRecordNotFound if it does not exist
	Get(ctx context.Context, entity string, id uint64) (*entities.StoredRecord, error)

	// NextID allocates the next record ID of an entity
	NextID(ctx context.Context, entity string) (uint64, error)

	// Upsert inserts or replaces a record and advances the entity sequence past its ID
	Upsert(ctx context.Context, record *entities.StoredRecord) error

	// Delete removes a record and reports whether it existed
	Delete(ctx context.Context, entity string, id uint64) (bool, error)

	// Count returns the number of records of an entity
	Count(ctx context.Context, entity string) (int, error)

	// WithTx runs fn in a transaction; calls nested inside fn join it
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases the underlying connection
	Close() error
}
