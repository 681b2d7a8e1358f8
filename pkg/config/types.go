package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Index     IndexConfig      `yaml:"index"`
	Database  DatabaseConfig   `yaml:"database"`
	Oracle    OracleConfig     `yaml:"oracle"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ProviderConfig describes one provider's pricing surface. Instances are
// created by Load and never mutated afterwards.
type ProviderConfig struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"` // "hyperscaler" or "neocloud"
	URL        string   `yaml:"url"`
	Enabled    bool     `yaml:"enabled"`
	Strategies []string `yaml:"strategies"` // ordered, e.g. ["static", "rendered"]

	// Unit metadata for normalization.
	Currency        string `yaml:"currency"`       // ISO code; "USD" means no conversion
	BillingPeriod   string `yaml:"billing_period"` // "hourly", "daily" or "monthly"
	GPUsPerInstance int    `yaml:"gpus_per_instance"`

	// Plausibility windows. RawBounds applies to the value as extracted,
	// in the source currency and billing period. CanonicalBounds applies
	// after normalization to USD/hr/GPU.
	RawBounds       Bounds `yaml:"raw_bounds"`
	CanonicalBounds Bounds `yaml:"canonical_bounds"`

	// Extraction hints.
	Keyword      string `yaml:"keyword"`       // page must mention this, default "H200"
	PricePattern string `yaml:"price_pattern"` // regex override for price extraction

	// Index weighting. Effective price is the listed price after the
	// provider's typical negotiated discount.
	DiscountRate float64 `yaml:"discount_rate"`
	Weight       float64 `yaml:"weight"`

	// On-chain asset id (0x-prefixed bytes32). Empty means keccak256(name).
	AssetID string `yaml:"asset_id"`
}

// Bounds is a closed plausibility interval.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies inside the closed interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// IndexConfig configures aggregation and the historical validation gate.
type IndexConfig struct {
	HyperscalerWeight float64 `yaml:"hyperscaler_weight"`
	NeocloudWeight    float64 `yaml:"neocloud_weight"`
	Tolerance         float64 `yaml:"tolerance"` // deviation gate, default 0.25
}

// DatabaseConfig configures the Postgres sink.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"` // supports ${ENV} expansion
	IndexTable    string `yaml:"index_table"`
	ProviderTable string `yaml:"provider_table"`
}

// OracleConfig configures the on-chain sink.
type OracleConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RPCURL          string   `yaml:"rpc_url"`
	ChainID         int64    `yaml:"chain_id"`
	ContractAddress string   `yaml:"contract_address"`
	PrivateKeyEnv   string   `yaml:"private_key_env"` // env var holding the hex key
	Decimals        int32    `yaml:"decimals"`        // fixed-point scale, default 18
	ConfirmTimeout  Duration `yaml:"confirm_timeout"` // default 180s
	AuditLogPath    string   `yaml:"audit_log_path"`
	IndexAssetID    string   `yaml:"index_asset_id"` // bytes32 hex for the aggregate price
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
