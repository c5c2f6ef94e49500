package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/relbox/internal/entities"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/repositories"
)

// SQLiteRecordRepository implements RecordRepository using embedded SQLite
type SQLiteRecordRepository struct {
	conn *database.SQLite
	db   *sql.DB
}

// NewSQLiteRecordRepository creates a new SQLite record repository.
// The repository takes ownership of conn and closes it on Close.
func NewSQLiteRecordRepository(conn *database.SQLite) repositories.RecordRepository {
	return &SQLiteRecordRepository{conn: conn, db: conn.DB}
}

// Get retrieves a record
func (r *SQLiteRecordRepository) Get(ctx context.Context, entity string, id uint64) (*entities.StoredRecord, error) {
	query := `
		SELECT data, links, updated_at
		FROM records
		WHERE entity = ? AND id = ?
	`
	var (
		data, links string
		updatedAt   string
	)
	err := repositories.Executor(ctx, r.db).QueryRowContext(ctx, query, entity, int64(id)).Scan(&data, &links, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%d: %w", entity, id, repositories.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	record := &entities.StoredRecord{Entity: entity, ID: id, Data: []byte(data)}
	if err := record.DecodeLinks([]byte(links)); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at of %s: %w", record, err)
	}
	return record, nil
}

// NextID allocates the next record ID of an entity
func (r *SQLiteRecordRepository) NextID(ctx context.Context, entity string) (uint64, error) {
	query := `
		INSERT INTO entity_sequences (entity, last_id)
		VALUES (?, 1)
		ON CONFLICT (entity) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id
	`
	var id int64
	if err := repositories.Executor(ctx, r.db).QueryRowContext(ctx, query, entity).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate id for %s: %w", entity, err)
	}
	return uint64(id), nil
}

// Upsert inserts or replaces a record and advances the entity sequence past its ID
func (r *SQLiteRecordRepository) Upsert(ctx context.Context, record *entities.StoredRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	links, err := record.EncodeLinks()
	if err != nil {
		return err
	}

	return repositories.RunInTx(ctx, r.db, func(ctx context.Context) error {
		exec := repositories.Executor(ctx, r.db)
		now := time.Now().UTC()

		query := `
			INSERT INTO records (entity, id, data, links, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (entity, id) DO UPDATE SET
				data = excluded.data,
				links = excluded.links,
				updated_at = excluded.updated_at
		`
		if _, err := exec.ExecContext(ctx, query,
			record.Entity, int64(record.ID), string(record.Data), string(links), now.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", record, err)
		}

		seq := `
			INSERT INTO entity_sequences (entity, last_id)
			VALUES (?, ?)
			ON CONFLICT (entity) DO UPDATE SET last_id = MAX(last_id, excluded.last_id)
		`
		if _, err := exec.ExecContext(ctx, seq, record.Entity, int64(record.ID)); err != nil {
			return fmt.Errorf("failed to advance sequence of %s: %w", record.Entity, err)
		}

		record.UpdatedAt = now
		return nil
	})
}

// Delete removes a record and reports whether it existed
func (r *SQLiteRecordRepository) Delete(ctx context.Context, entity string, id uint64) (bool, error) {
	res, err := repositories.Executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM records WHERE entity = ? AND id = ?`, entity, int64(id))
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
func (r *SQLiteRecordRepository) Count(ctx context.Context, entity string) (int, error) {
	var n int
	err := repositories.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = ?`, entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// WithTx runs fn in a transaction
func (r *SQLiteRecordRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return repositories.RunInTx(ctx, r.db, fn)
}

// Close closes the database
func (r *SQLiteRecordRepository) Close() error {
	return r.conn.Close()
}
