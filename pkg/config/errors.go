package config

import "errors"

var (
	// ErrNoProvidersConfigured indicates that no providers are configured.
	ErrNoProvidersConfigured = errors.New("at least one provider must be configured")
	// ErrNoProvidersEnabled indicates that no providers are enabled.
	ErrNoProvidersEnabled = errors.New("no providers enabled")
	// ErrProviderNameRequired indicates that a provider name is missing.
	ErrProviderNameRequired = errors.New("provider name is required")
	// ErrProviderURLRequired indicates that a provider URL is missing.
	ErrProviderURLRequired = errors.New("provider url is required")
	// ErrInvalidProviderType indicates an unknown provider type.
	ErrInvalidProviderType = errors.New("provider type must be 'hyperscaler' or 'neocloud'")
	// ErrInvalidBillingPeriod indicates an unknown billing period.
	ErrInvalidBillingPeriod = errors.New("billing_period must be 'hourly', 'daily' or 'monthly'")
	// ErrUnknownStrategy indicates an unknown extraction strategy name.
	ErrUnknownStrategy = errors.New("unknown extraction strategy")
	// ErrInvalidBounds indicates a malformed plausibility interval.
	ErrInvalidBounds = errors.New("bounds min must be positive and below max")
	// ErrInvalidWeight indicates a non-positive provider weight.
	ErrInvalidWeight = errors.New("weight must be positive")
	// ErrInvalidDiscountRate indicates an out-of-range discount rate.
	ErrInvalidDiscountRate = errors.New("discount_rate must be in [0, 1)")
	// ErrInvalidTolerance indicates an out-of-range validation tolerance.
	ErrInvalidTolerance = errors.New("tolerance must be in (0, 1)")
	// ErrNoSinksEnabled indicates that neither publication sink is enabled.
	ErrNoSinksEnabled = errors.New("at least one of database or oracle must be enabled")
	// ErrDatabaseURLRequired indicates that the database URL is missing.
	ErrDatabaseURLRequired = errors.New("database url must be set when database sink is enabled")
	// ErrOracleRPCRequired indicates that the oracle RPC URL is missing.
	ErrOracleRPCRequired = errors.New("oracle rpc_url must be set when oracle sink is enabled")
	// ErrOracleContractRequired indicates that the contract address is missing.
	ErrOracleContractRequired = errors.New("oracle contract_address must be set when oracle sink is enabled")
	// ErrOracleChainIDRequired indicates that the chain id is missing.
	ErrOracleChainIDRequired = errors.New("oracle chain_id must be set when oracle sink is enabled")
	// ErrPrivateKeyNotSet indicates that the signing key env var is empty.
	ErrPrivateKeyNotSet = errors.New("oracle private key environment variable not set")
	// ErrInvalidAssetID indicates a malformed on-chain asset id.
	ErrInvalidAssetID = errors.New("asset_id must be a 0x-prefixed 32-byte hex string")
	// ErrInvalidLogLevel indicates an invalid log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates an invalid log format.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
