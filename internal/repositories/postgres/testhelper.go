package postgres

import (
	"fmt"
	"testing"

	"github.com/asakaida/relbox/internal/infrastructure/config"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/spf13/viper"
)

// SetupTestRepository connects to the test database, runs migrations and returns a record repository.
// The test is skipped when no database password is configured.
func SetupTestRepository(t *testing.T) repositories.RecordRepository {
	t.Helper()

	// Initialize test config
	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}
	if viper.GetString("DB_PASSWORD") == "" {
		t.Skip("DB_PASSWORD not set; skipping PostgreSQL integration test")
	}
	viper.Set("STORE_DRIVER", config.DriverPostgres)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("PostgreSQL not reachable: %v", err)
	}

	if err := pg.RunMigrations(); err != nil {
		pg.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanupTables(t, pg)
	repo := NewPostgresRecordRepository(pg)
	t.Cleanup(func() {
		cleanupTables(t, pg)
		if err := repo.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
	})
	return repo
}

// cleanupTables removes all rows written by tests
func cleanupTables(t *testing.T, pg *database.Postgres) {
	t.Helper()

	if pg.DB == nil {
		return
	}
	tables := []string{"records", "entity_sequences"}
	for _, table := range tables {
		_, err := pg.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}
}
