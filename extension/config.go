package extension

import (
	"time"

	"github.com/billbuddy/hourbank"
)

// Store drivers understood by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the hourbank extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.hourbank" or "hourbank" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend when no store is set with WithStore
	// (default: "memory").
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the file path (sqlite, bolt) or connection URL (postgres, mongo).
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "hourbank").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// Schema becomes the search_path of PostgreSQL connections, so the
	// tables live there. The schema must already exist. Empty keeps the
	// server default.
	Schema string `json:"schema" mapstructure:"schema" yaml:"schema"`

	// ConflictRetries is how many times a debit is retried when the store
	// reports a concurrent-modification conflict (default: 3). Zero
	// disables retries; nil means unset.
	ConflictRetries *int `json:"conflict_retries" mapstructure:"conflict_retries" yaml:"conflict_retries"`

	// RetryBackoff is the base pause between conflict retries (default: 10ms).
	RetryBackoff time.Duration `json:"retry_backoff" mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// EnableMetrics registers the Prometheus metrics plugin with the
	// default registerer.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		Database:        "hourbank",
		ConflictRetries: intPtr(3),
		RetryBackoff:    10 * time.Millisecond,
		HookTimeout:     5 * time.Second,
	}
}

// Retries returns the resolved conflict retry count.
func (c Config) Retries() int {
	if c.ConflictRetries == nil {
		return hourbank.DefaultConflictRetries
	}
	return *c.ConflictRetries
}

func intPtr(n int) *int { return &n }
