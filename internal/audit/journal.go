// Package audit records executed smart-home tool calls to an append-only
// journal for operator diagnostics. It never affects the session
// controller's observable behavior: a disabled journal does nothing, and a
// failing one is logged and otherwise ignored.
package audit

import (
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ToolInvocation is one executed (or attempted) smart-home tool call.
type ToolInvocation struct {
	Domain            string `msgpack:"domain"`
	Service           string `msgpack:"service"`
	EntityID          string `msgpack:"entity_id,omitempty"`
	OK                bool   `msgpack:"ok"`
	Result            string `msgpack:"result"`
	TimestampUnixNano int64  `msgpack:"timestamp_unix_nano"`
}

// silentBadgerLogger suppresses badger's default verbose logging; this
// journal logs through slog instead.
type silentBadgerLogger struct{}

func (silentBadgerLogger) Errorf(string, ...any)   {}
func (silentBadgerLogger) Warningf(string, ...any) {}
func (silentBadgerLogger) Infof(string, ...any)    {}
func (silentBadgerLogger) Debugf(string, ...any)   {}

// Journal appends ToolInvocation records to a badger-backed key-value
// store. A zero-value Journal (or one built with an empty path) is a
// no-op, matching spec.md's "this is a side channel for diagnostics,
// never a hard dependency" stance.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) a badger database at dir for the
// journal. An empty dir yields a disabled, no-op Journal.
func Open(dir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return &Journal{logger: logger}, nil
	}

	opts := badger.DefaultOptions(dir).WithLogger(silentBadgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal at %q: %w", dir, err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Enabled reports whether the journal is backed by an open store.
func (j *Journal) Enabled() bool {
	return j != nil && j.db != nil
}

// Record appends inv to the journal, keyed by its timestamp so entries
// iterate in insertion order. Failures are logged, not returned: a broken
// journal must never fail a tool call.
func (j *Journal) Record(inv ToolInvocation) {
	if !j.Enabled() {
		return
	}

	value, err := msgpack.Marshal(inv)
	if err != nil {
		j.logger.Warn("audit: encode tool invocation failed", "error", err)
		return
	}

	key := fmt.Sprintf("invocation/%020d", inv.TimestampUnixNano)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		j.logger.Warn("audit: record tool invocation failed", "error", err)
	}
}

// Close closes the underlying store, if any.
func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}
	return j.db.Close()
}
