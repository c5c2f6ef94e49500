package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/asakaida/relbox/internal/infrastructure/config"
	"github.com/asakaida/relbox/internal/infrastructure/database"
	"github.com/asakaida/relbox/internal/infrastructure/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var (
	envFlag string
	pg      *database.Postgres
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for relbox",
	Long: `Database migration tool for relbox.
Manages PostgreSQL schema migrations using golang-migrate.
Migrations are embedded in the binary. SQLite databases create their schema on open.`,
	PersistentPreRunE:  setupDatabase,
	PersistentPostRunE: closeDatabase,
	SilenceUsage:       true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long:  `Apply all pending migrations to the database.`,
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Long:  `Migrate to a specific version number.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Long:  `Display the current migration version of the database.`,
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err = logging.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("using environment", slog.String("env", envFlag))

	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations apply to the %s driver only (STORE_DRIVER=%s)", config.DriverPostgres, cfg.Store.Driver)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to database",
		slog.String("addr", fmt.Sprintf("%s@%s:%d/%s",
			cfg.Database.User,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database)))
	return nil
}

func closeDatabase(cmd *cobra.Command, args []string) error {
	if pg == nil {
		return nil
	}
	return pg.Close()
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := pg.Migrator()
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
	} else {
		logger.Info("migration up completed successfully")
	}
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid steps %q", args[0])
		}
		steps = n
	}

	m, err := pg.Migrator()
	if err != nil {
		return err
	}

	err = m.Steps(-steps)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to rollback")
	} else {
		logger.Info("migration down completed successfully", slog.Int("steps", steps))
	}
	return nil
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	m, err := pg.Migrator()
	if err != nil {
		return err
	}

	err = m.Migrate(uint(version))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration goto failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("already at version", slog.Uint64("version", version))
	} else {
		logger.Info("migration goto completed successfully", slog.Uint64("version", version))
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := pg.Migrator()
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if dirty {
		logger.Warn("current version is dirty, a migration may have failed", slog.Uint64("version", uint64(version)))
	} else {
		logger.Info("current version", slog.Uint64("version", uint64(version)))
	}
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	m, err := pg.Migrator()
	if err != nil {
		return err
	}

	if err := m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}

	logger.Info("migration forced", slog.Int("version", version))
	return nil
}
