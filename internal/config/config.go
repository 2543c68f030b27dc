// Package config loads runtime configuration from an optional YAML file and
// SPYGLASS_-prefixed environment variables. Environment wins over file,
// file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration
type Config struct {
	// Addr is the HTTP listen address
	Addr string `mapstructure:"addr"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	API       APIConfig       `mapstructure:"api"`
	Retention RetentionConfig `mapstructure:"retention"`

	// BudgetsPath points at the cost watcher's budgets YAML, empty for
	// built-in defaults
	BudgetsPath string `mapstructure:"budgets_path"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file
	Path string `mapstructure:"path"`
	// DSN is the postgres connection string
	DSN string `mapstructure:"dsn"`
}

// OracleConfig configures the AI oracle. An empty APIKey disables it; every
// pipeline stage that consults the oracle degrades to heuristics.
type OracleConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// APIConfig tunes the HTTP boundary
type APIConfig struct {
	// RatePerMinute is the per-tenant event ingestion rate limit
	RatePerMinute int `mapstructure:"rate_per_minute"`
	// MaxBatchSize caps events accepted in one ingestion request
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// RetentionConfig controls behavior event pruning
type RetentionConfig struct {
	// Enabled turns pruning on
	Enabled bool `mapstructure:"enabled"`
	// Days is how long behavior events are kept
	Days int `mapstructure:"days"`
	// BatchSize is how many rows one delete statement removes
	BatchSize int `mapstructure:"batch_size"`
}

// Load reads configuration. path names an explicit config file; when empty
// a spyglass.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8090")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", ".spyglass/spyglass.db")
	v.SetDefault("oracle.model", "")
	v.SetDefault("api.rate_per_minute", 100)
	v.SetDefault("api.max_batch_size", 500)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.batch_size", 1000)

	v.SetEnvPrefix("SPYGLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("spyglass")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q (valid: sqlite, postgres)", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage driver postgres requires storage.dsn")
	}
	if c.API.RatePerMinute <= 0 {
		return fmt.Errorf("api.rate_per_minute must be positive, got %d", c.API.RatePerMinute)
	}
	if c.API.MaxBatchSize <= 0 {
		return fmt.Errorf("api.max_batch_size must be positive, got %d", c.API.MaxBatchSize)
	}
	if c.Retention.Enabled {
		if c.Retention.Days < 1 {
			return fmt.Errorf("retention.days must be at least 1, got %d", c.Retention.Days)
		}
		if c.Retention.BatchSize < 1 {
			return fmt.Errorf("retention.batch_size must be at least 1, got %d", c.Retention.BatchSize)
		}
	}
	return nil
}
