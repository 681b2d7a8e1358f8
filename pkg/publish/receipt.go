// Package publish defines the shared publication receipt returned by the
// database and on-chain sinks.
package publish

import "time"

// Receipt records one successful publication. Used for logging and audit
// only; nothing downstream consumes it.
type Receipt struct {
	Sink      string    // "database" or "oracle"
	Ref       string    // row id or transaction hash
	Block     uint64    // block number for on-chain writes, 0 otherwise
	GasUsed   uint64    // gas consumed for on-chain writes, 0 otherwise
	Timestamp time.Time // when the write was confirmed
}
