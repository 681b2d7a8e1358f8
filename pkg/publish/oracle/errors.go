package oracle

import "errors"

var (
	// ErrNoUpdates indicates a publish call with an empty update set.
	ErrNoUpdates = errors.New("no price updates to publish")
	// ErrAssetNotRegistered indicates a configured asset id is not
	// registered in the oracle contract.
	ErrAssetNotRegistered = errors.New("asset not registered in oracle contract")
	// ErrTxReverted indicates a transaction was mined with a failure status.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrConfirmTimeout indicates a transaction was not mined within the
	// confirmation window.
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")
	// ErrPrivateKeyNotSet indicates the signing key env var is empty.
	ErrPrivateKeyNotSet = errors.New("oracle private key environment variable not set")
)
