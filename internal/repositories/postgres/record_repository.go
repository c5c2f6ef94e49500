package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/relbox/internal/entities"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/lib/pq"
)

// PostgreSQL error codes mapped to repository errors
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// PostgresRecordRepository implements RecordRepository using PostgreSQL
type PostgresRecordRepository struct {
	conn *database.Postgres
	db   *sql.DB
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository.
// The repository takes ownership of conn and closes it on Close.
func NewPostgresRecordRepository(conn *database.Postgres) repositories.RecordRepository {
	return &PostgresRecordRepository{conn: conn, db: conn.DB}
}

// mapError translates PostgreSQL errors into repository errors
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation, codeSerializationFailure:
			return fmt.Errorf("%w: %s", repositories.ErrConflict, pqErr.Message)
		}
	}
	return err
}

// Get retrieves a record
func (r *PostgresRecordRepository) Get(ctx context.Context, entity string, id uint64) (*entities.StoredRecord, error) {
	query := `
		SELECT data, links, updated_at
		FROM records
		WHERE entity = $1 AND id = $2
	`
	record := &entities.StoredRecord{Entity: entity, ID: id}
	var links []byte
	err := repositories.Executor(ctx, r.db).QueryRowContext(ctx, query, entity, int64(id)).
		Scan(&record.Data, &links, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%d: %w", entity, id, repositories.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if err := record.DecodeLinks(links); err != nil {
		return nil, err
	}
	return record, nil
}

// NextID allocates the next record ID of an entity
func (r *PostgresRecordRepository) NextID(ctx context.Context, entity string) (uint64, error) {
	query := `
		INSERT INTO entity_sequences (entity, last_id)
		VALUES ($1, 1)
		ON CONFLICT (entity) DO UPDATE SET last_id = entity_sequences.last_id + 1
		RETURNING last_id
	`
	var id int64
	if err := repositories.Executor(ctx, r.db).QueryRowContext(ctx, query, entity).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate id for %s: %w", entity, mapError(err))
	}
	return uint64(id), nil
}

// Upsert inserts or replaces a record and advances the entity sequence past its ID
func (r *PostgresRecordRepository) Upsert(ctx context.Context, record *entities.StoredRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	links, err := record.EncodeLinks()
	if err != nil {
		return err
	}

	return repositories.RunInTx(ctx, r.db, func(ctx context.Context) error {
		exec := repositories.Executor(ctx, r.db)
		now := time.Now()

		query := `
			INSERT INTO records (entity, id, data, links, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (entity, id) DO UPDATE SET
				data = EXCLUDED.data,
				links = EXCLUDED.links,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := exec.ExecContext(ctx, query,
			record.Entity, int64(record.ID), string(record.Data), string(links), now,
		); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", record, mapError(err))
		}

		seq := `
			INSERT INTO entity_sequences (entity, last_id)
			VALUES ($1, $2)
			ON CONFLICT (entity) DO UPDATE SET last_id = GREATEST(entity_sequences.last_id, EXCLUDED.last_id)
		`
		if _, err := exec.ExecContext(ctx, seq, record.Entity, int64(record.ID)); err != nil {
			return fmt.Errorf("failed to advance sequence of %s: %w", record.Entity, mapError(err))
		}

		record.UpdatedAt = now
		return nil
	})
}

// Delete removes a record and reports whether it existed
func (r *PostgresRecordRepository) Delete(ctx context.Context, entity string, id uint64) (bool, error) {
	res, err := repositories.Executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM records WHERE entity = $1 AND id = $2`, entity, int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of records of an entity
func (r *PostgresRecordRepository) Count(ctx context.Context, entity string) (int, error) {
	var n int
	err := repositories.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = $1`, entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// WithTx runs fn in a transaction
func (r *PostgresRecordRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return repositories.RunInTx(ctx, r.db, fn)
}

// Close closes the database connection
func (r *PostgresRecordRepository) Close() error {
	return r.conn.Close()
}
