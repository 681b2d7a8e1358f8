package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration for errors, publication sinks included.
// Configuration problems are fatal at startup, before any scraping begins.
func Validate(cfg *Config) error {
	if err := ValidateScraping(cfg); err != nil {
		return err
	}

	if !cfg.Database.Enabled && !cfg.Oracle.Enabled {
		return ErrNoSinksEnabled
	}

	if cfg.Database.Enabled && cfg.Database.URL == "" {
		return ErrDatabaseURLRequired
	}

	if cfg.Oracle.Enabled {
		if err := validateOracle(&cfg.Oracle); err != nil {
			return fmt.Errorf("oracle config: %w", err)
		}
	}

	return nil
}

// ValidateScraping checks the provider catalog, index and logging
// configuration but skips the sink checks. Dry-run publishes nothing, yet a
// malformed provider entry should still fail there.
func ValidateScraping(cfg *Config) error {
	if len(cfg.Providers) == 0 {
		return ErrNoProvidersConfigured
	}

	enabled := 0
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if err := validateProvider(p); err != nil {
			return fmt.Errorf("provider %d (%s): %w", i, p.Name, err)
		}
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoProvidersEnabled
	}

	if cfg.Index.Tolerance <= 0 || cfg.Index.Tolerance >= 1 {
		return fmt.Errorf("index config: %w (got %v)", ErrInvalidTolerance, cfg.Index.Tolerance)
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateProvider(p *ProviderConfig) error {
	if p.Name == "" {
		return ErrProviderNameRequired
	}
	if p.Enabled && p.URL == "" {
		return ErrProviderURLRequired
	}

	typ := strings.ToLower(p.Type)
	if typ != "hyperscaler" && typ != "neocloud" {
		return fmt.Errorf("%w: %s", ErrInvalidProviderType, p.Type)
	}

	period := strings.ToLower(p.BillingPeriod)
	if period != "hourly" && period != "daily" && period != "monthly" {
		return fmt.Errorf("%w: %s", ErrInvalidBillingPeriod, p.BillingPeriod)
	}

	for _, s := range p.Strategies {
		if s != "static" && s != "rendered" {
			return fmt.Errorf("%w: %s", ErrUnknownStrategy, s)
		}
	}

	if p.Weight <= 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidWeight, p.Weight)
	}
	if p.DiscountRate < 0 || p.DiscountRate >= 1 {
		return fmt.Errorf("%w (got %v)", ErrInvalidDiscountRate, p.DiscountRate)
	}

	if p.RawBounds.Min <= 0 || p.RawBounds.Min >= p.RawBounds.Max {
		return fmt.Errorf("raw_bounds: %w", ErrInvalidBounds)
	}
	if p.CanonicalBounds.Min <= 0 || p.CanonicalBounds.Min >= p.CanonicalBounds.Max {
		return fmt.Errorf("canonical_bounds: %w", ErrInvalidBounds)
	}

	if p.AssetID != "" {
		if !strings.HasPrefix(p.AssetID, "0x") || len(p.AssetID) != 66 {
			return fmt.Errorf("%w: %s", ErrInvalidAssetID, p.AssetID)
		}
	}

	return nil
}

func validateOracle(cfg *OracleConfig) error {
	if cfg.RPCURL == "" {
		return ErrOracleRPCRequired
	}
	if cfg.ContractAddress == "" {
		return ErrOracleContractRequired
	}
	if cfg.ChainID == 0 {
		return ErrOracleChainIDRequired
	}
	if os.Getenv(cfg.PrivateKeyEnv) == "" {
		return fmt.Errorf("%w: %s", ErrPrivateKeyNotSet, cfg.PrivateKeyEnv)
	}
	if !strings.HasPrefix(cfg.IndexAssetID, "0x") || len(cfg.IndexAssetID) != 66 {
		return fmt.Errorf("%w: %s", ErrInvalidAssetID, cfg.IndexAssetID)
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, cfg.Level)
	}

	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
