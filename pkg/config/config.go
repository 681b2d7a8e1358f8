// Package config provides configuration loading and validation for the
// H200 index pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file. Environment variables referenced
// in the file ($VAR or ${VAR}) are expanded before parsing; a .env file in the
// working directory is loaded first if present, so credentials never live in
// the YAML itself.
func Load(path string) (*Config, error) {
	// Credentials come from the environment; .env is optional.
	_ = godotenv.Load()

	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Currency == "" {
			p.Currency = "USD"
		}
		if p.BillingPeriod == "" {
			p.BillingPeriod = "hourly"
		}
		if p.GPUsPerInstance == 0 {
			p.GPUsPerInstance = 1
		}
		if p.Keyword == "" {
			p.Keyword = "H200"
		}
		if p.Weight == 0 {
			p.Weight = 1.0
		}
		if len(p.Strategies) == 0 {
			p.Strategies = []string{"static", "rendered"}
		}
		// A provider configured without a canonical window inherits the
		// widest window any provider uses.
		if p.CanonicalBounds.Min == 0 && p.CanonicalBounds.Max == 0 {
			p.CanonicalBounds = Bounds{Min: 0.5, Max: 50}
		}
		if p.RawBounds.Min == 0 && p.RawBounds.Max == 0 {
			p.RawBounds = p.CanonicalBounds
		}
	}

	// Index defaults
	if cfg.Index.Tolerance == 0 {
		cfg.Index.Tolerance = 0.25
	}
	if cfg.Index.HyperscalerWeight == 0 && cfg.Index.NeocloudWeight == 0 {
		cfg.Index.HyperscalerWeight = 0.5
		cfg.Index.NeocloudWeight = 0.5
	}

	// Database defaults
	if cfg.Database.IndexTable == "" {
		cfg.Database.IndexTable = "h200_index_prices"
	}
	if cfg.Database.ProviderTable == "" {
		cfg.Database.ProviderTable = "h200_provider_prices"
	}

	// Oracle defaults
	if cfg.Oracle.Decimals == 0 {
		cfg.Oracle.Decimals = 18
	}
	if cfg.Oracle.ConfirmTimeout == 0 {
		cfg.Oracle.ConfirmTimeout = Duration(180 * 1e9) // 180 seconds
	}
	if cfg.Oracle.PrivateKeyEnv == "" {
		cfg.Oracle.PrivateKeyEnv = "ORACLE_UPDATER_PRIVATE_KEY"
	}
	if cfg.Oracle.AuditLogPath == "" {
		cfg.Oracle.AuditLogPath = "h200_oracle_update_log.json"
	}
	if cfg.Oracle.IndexAssetID == "" {
		// keccak256("H200_HOURLY")
		cfg.Oracle.IndexAssetID = "0x4d8595569ab5d2563e4c149c5de961d0e0732cd0560020b3474d281189c2571e"
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// EnabledProviders returns the providers that are enabled, in catalog order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
