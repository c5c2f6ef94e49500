package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/asakaida/relbox/internal/infrastructure/config"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/multierr"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite represents an embedded SQLite database
type SQLite struct {
	DB   *sql.DB
	Path string
}

// sqliteDSN builds the connection string. Pragmas go in the DSN so every
// pooled connection gets them, and write transactions take the lock up front.
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(wal)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return fmt.Sprintf("file:%s?%s", path, params.Encode())
}

// NewSQLite opens (creating if needed) the SQLite database at cfg.Path
func NewSQLite(cfg *config.SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLite{DB: db, Path: cfg.Path}, nil
}

// InitSchema creates the record tables if they do not exist.
// It is idempotent and safe to call on every start.
func (s *SQLite) InitSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// HealthCheck checks if the database connection is healthy
func (s *SQLite) HealthCheck() error {
	if s.DB == nil {
		return errors.New("database health check failed: connection is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database
func (s *SQLite) Close() error {
	if s.DB == nil {
		return nil
	}

	var err error
	if _, cpErr := s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); cpErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to checkpoint WAL: %w", cpErr))
	}
	if closeErr := s.DB.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close database: %w", closeErr))
	}
	s.DB = nil
	return err
}
