package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asakaida/relbox/internal/infrastructure/config"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/repositories"
)

// SetupTestRepository creates a record repository over a fresh SQLite database in a temp directory
func SetupTestRepository(t testing.TB) repositories.RecordRepository {
	t.Helper()

	conn, err := database.NewSQLite(&config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "relbox.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := conn.InitSchema(context.Background()); err != nil {
		conn.Close()
		t.Fatalf("Failed to init schema: %v", err)
	}

	repo := NewSQLiteRecordRepository(conn)
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
	})
	return repo
}
