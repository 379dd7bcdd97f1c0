// Package storage defines the SQL ledger that mirrors appended distractor
// records, and the registry its backends plug into.
//
// Backends register themselves from init(); import
// distractors/internal/storage/all to link every backend and driver.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// LedgerConfig selects and configures a backend.
type LedgerConfig struct {
	// Kind is a registered backend name: "sqlite", "postgres" or "mssql".
	Kind string
	// DSN is passed to the backend verbatim.
	DSN string
}

// Ledger is the backend-agnostic write surface of the record mirror.
//
// Inserts with dedupeColumns are idempotent: rows whose dedupe columns match
// an existing row are skipped, each backend using its native construct.
type Ledger interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTable creates the table and its constraints when missing.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// InsertRows inserts rows aligned with columns and returns how many were
	// actually written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// CountRows returns the number of rows in table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// LedgerFactory opens a Ledger for cfg.
type LedgerFactory func(ctx context.Context, cfg LedgerConfig) (Ledger, error)

var (
	ledgerMu        sync.RWMutex
	ledgerFactories = map[string]LedgerFactory{}
)

// RegisterLedger registers a backend under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func RegisterLedger(kind string, f LedgerFactory) {
	ledgerMu.Lock()
	defer ledgerMu.Unlock()

	if kind == "" {
		panic("storage: RegisterLedger called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterLedger called with nil factory")
	}
	if _, exists := ledgerFactories[kind]; exists {
		panic(fmt.Sprintf("storage: ledger factory already registered for kind=%q", kind))
	}
	ledgerFactories[kind] = f
}

// NewLedger opens a ledger with the backend registered for cfg.Kind.
func NewLedger(ctx context.Context, cfg LedgerConfig) (Ledger, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing ledger kind")
	}

	ledgerMu.RLock()
	f := ledgerFactories[cfg.Kind]
	ledgerMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported ledger kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	ledgerMu.RLock()
	defer ledgerMu.RUnlock()

	out := make([]string, 0, len(ledgerFactories))
	for k := range ledgerFactories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
