// Package auditlog keeps a bounded on-disk record of oracle update attempts.
// The file is a JSON array, newest entry last, capped at a fixed number of
// entries so it never grows without bound.
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxEntries is the retention cap; older entries are dropped first.
const maxEntries = 100

// Entry records a single oracle update attempt, successful or not.
type Entry struct {
	Timestamp       time.Time `json:"timestamp"`
	Asset           string    `json:"asset"`
	PriceUSD        string    `json:"price_usd"`
	TxHash          string    `json:"tx_hash,omitempty"`
	BlockNumber     uint64    `json:"block_number,omitempty"`
	GasUsed         uint64    `json:"gas_used,omitempty"`
	ContractAddress string    `json:"contract_address"`
	Network         string    `json:"network"`
	UpdaterAddress  string    `json:"updater_address"`
	Outcome         string    `json:"outcome"` // "confirmed", "failed", "timeout"
	Error           string    `json:"error,omitempty"`
}

// Log appends entries to a JSON audit file at path.
type Log struct {
	path string
}

// New returns a log writing to path. The file is created on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Append adds an entry to the file, trimming the oldest entries past the
// retention cap. The write is atomic via a temp-file rename, so a crash
// mid-write cannot corrupt the existing log.
func (l *Log) Append(entry Entry) error {
	entries, err := l.read()
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit log: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace audit log: %w", err)
	}
	return nil
}

// Entries returns the current contents of the log, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	return l.read()
}

func (l *Log) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt file is replaced rather than blocking updates; the
		// broken content is preserved alongside for inspection.
		backup := l.path + ".corrupt"
		_ = os.WriteFile(backup, data, 0o644)
		return nil, nil
	}
	return entries, nil
}

// Path returns the absolute path of the log file.
func (l *Log) Path() string {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return l.path
	}
	return abs
}
