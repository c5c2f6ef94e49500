package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Cache    CacheConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// StoreConfig represents storage session configuration
type StoreConfig struct {
	Driver         string // sqlite or postgres
	DebugRelations bool   // Log every resolved to-one target write
}

// SQLiteConfig represents embedded SQLite configuration
type SQLiteConfig struct {
	Path string
}

// CacheConfig represents record cache configuration
type CacheConfig struct {
	Enabled    bool
	MaxEntries int // Maximum number of cached records
	Metrics    bool
	TTLMinutes int // Time-to-live for cache entries in minutes
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// MetricsConfig represents metrics endpoint configuration
type MetricsConfig struct {
	Addr string // Listen address for the Prometheus /metrics endpoint
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	viper.SetDefault("STORE_DRIVER", DriverSQLite)
	viper.SetDefault("DEBUG_RELATIONS", false)
	viper.SetDefault("SQLITE_PATH", filepath.Join(projectRoot, ".relbox", fmt.Sprintf("relbox_%s.db", env)))

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "relbox")
	viper.SetDefault("DB_NAME", "relbox_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_ENTRIES", 10000)
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("METRICS_ADDR", ":9090")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	driver := strings.ToLower(viper.GetString("STORE_DRIVER"))
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	// DB_PASSWORD is required for security when talking to PostgreSQL
	dbPassword := viper.GetString("DB_PASSWORD")
	if driver == DriverPostgres && dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Store: StoreConfig{
			Driver:         driver,
			DebugRelations: viper.GetBool("DEBUG_RELATIONS"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("SQLITE_PATH"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			MaxEntries: viper.GetInt("CACHE_MAX_ENTRIES"),
			Metrics:    viper.GetBool("CACHE_METRICS"),
			TTLMinutes: viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("METRICS_ADDR"),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
