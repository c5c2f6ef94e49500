// Package app wires configuration, storage, cache and metrics into a Store.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asakaida/relbox/internal/infrastructure/config"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/infrastructure/metrics"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/asakaida/relbox/internal/repositories/cached"
	"github.com/asakaida/relbox/internal/repositories/postgres"
	"github.com/asakaida/relbox/internal/repositories/sqlite"
	"github.com/asakaida/relbox/internal/store"
	"github.com/asakaida/relbox/pkg/cache/memorycache"
	"github.com/prometheus/client_golang/prometheus"
)

// App holds the wired storage session and its metrics.
type App struct {
	Store     *store.Store
	Collector *metrics.Collector
	Exporter  *metrics.PrometheusExporter

	healthCheck func() error
}

// New opens the configured backend, prepares its schema and returns the wired store.
// Metrics are registered with reg; a nil reg uses the default Prometheus registry.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, healthCheck, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector, reg)
	recorder := metrics.NewRecorder(collector, exporter)

	if cfg.Cache.Enabled {
		c, err := memorycache.New(&memorycache.Config{
			MaxEntries:    cfg.Cache.MaxEntries,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to create record cache: %w", err)
		}
		collector.SetCache(c)
		repo = cached.NewCachedRecordRepository(repo, c, time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
			cached.WithObserver(recorder.ObserveCache))
		logger.Debug("record cache enabled",
			slog.Int("max_entries", cfg.Cache.MaxEntries),
			slog.Int("ttl_minutes", cfg.Cache.TTLMinutes))
	}

	s := store.New(repo,
		store.WithLogger(logger),
		store.WithDebugRelations(cfg.Store.DebugRelations),
		store.WithRecorder(recorder),
	)

	return &App{Store: s, Collector: collector, Exporter: exporter, healthCheck: healthCheck}, nil
}

// HealthCheck pings the configured database.
func (a *App) HealthCheck() error {
	return a.healthCheck()
}

// Close closes the store and its backend.
func (a *App) Close() error {
	return a.Store.Close()
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.RecordRepository, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := database.NewPostgres(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pg.RunMigrations(); err != nil {
			pg.Close()
			return nil, nil, err
		}
		logger.Info("connected to database",
			slog.String("driver", config.DriverPostgres),
			slog.String("addr", fmt.Sprintf("%s@%s:%d/%s",
				cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)))
		return postgres.NewPostgresRecordRepository(pg), pg.HealthCheck, nil

	case config.DriverSQLite, "":
		db, err := database.NewSQLite(&cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("opened database",
			slog.String("driver", config.DriverSQLite),
			slog.String("path", cfg.SQLite.Path))
		return sqlite.NewSQLiteRecordRepository(db), db.HealthCheck, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
