// Package extension provides the Forge extension adapter for hourbank.
//
// It implements the forge.Extension interface to integrate the hour bank
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.hourbank" or "hourbank" keys.
package extension

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/observability"
	"github.com/billbuddy/hourbank/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "hourbank"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid-hour credit ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts hourbank as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	bank     *hourbank.Bank
	store    store.Store
	bankOpts []hourbank.Option
}

// New creates a new hourbank Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bank returns the underlying hour bank.
// This is nil until Register is called.
func (e *Extension) Bank() *hourbank.Bank { return e.bank }

// Register implements [forge.Extension]. It loads configuration, opens the
// configured store, builds the bank and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := openStore(context.Background(), e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	e.bank = hourbank.New(e.store, e.buildBankOpts()...)
	e.bank.Plugins().WithTimeout(e.config.HookTimeout)

	return vessel.Provide(fapp.Container(), func() (*hourbank.Bank, error) {
		return e.bank, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.bank == nil {
		return errors.New("hourbank: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.bank.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.bank != nil {
		if err := e.bank.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("hourbank: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildBankOpts constructs hourbank.Option values from the resolved config.
func (e *Extension) buildBankOpts() []hourbank.Option {
	opts := make([]hourbank.Option, 0, len(e.bankOpts)+3)

	opts = append(opts,
		hourbank.WithConflictRetries(e.config.Retries()),
		hourbank.WithRetryBackoff(e.config.RetryBackoff),
	)

	if e.config.EnableMetrics {
		factory := observability.NewPrometheusFactory(prometheus.DefaultRegisterer)
		opts = append(opts, hourbank.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Pass-through options last so they win over config.
	opts = append(opts, e.bankOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("hourbank: configuration is required but not found in config files; " +
				"ensure 'extensions.hourbank' or 'hourbank' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("hourbank: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("conflict_retries", e.config.Retries()),
		forge.F("retry_backoff", e.config.RetryBackoff),
		forge.F("hook_timeout", e.config.HookTimeout),
		forge.F("enable_metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.hourbank", "hourbank"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("hourbank: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("hourbank: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills unset fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.ConflictRetries == nil {
		cfg.ConflictRetries = defaults.ConflictRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" {
		yamlConfig.Database = programmaticConfig.Database
	}
	if yamlConfig.Schema == "" {
		yamlConfig.Schema = programmaticConfig.Schema
	}

	if yamlConfig.ConflictRetries == nil {
		yamlConfig.ConflictRetries = programmaticConfig.ConflictRetries
	}
	if yamlConfig.RetryBackoff == 0 {
		yamlConfig.RetryBackoff = programmaticConfig.RetryBackoff
	}
	if yamlConfig.HookTimeout == 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
