// Package ledger mirrors appended distractor records into a SQL table.
//
// The per-domain CSV files stay the source of truth; the ledger is a
// queryable copy keyed by row hash, so replaying the same files is a no-op.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"distractors/internal/metrics"
	"distractors/internal/recordstore"
	"distractors/internal/storage"
)

// DefaultBatchSize bounds the rows per insert statement.
const DefaultBatchSize = 200

// Logger is the minimal logging surface used by the mirror.
type Logger interface {
	Printf(format string, v ...any)
}

// Mirror writes records into one ledger table.
type Mirror struct {
	ledger    storage.Ledger
	table     string
	batchSize int
	logf      func(format string, v ...any)
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithBatchSize overrides DefaultBatchSize. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logf = l.Printf
		}
	}
}

// New ensures the record table exists and returns a Mirror over it.
// An empty table name selects storage.DefaultRecordTable.
func New(ctx context.Context, l storage.Ledger, table string, opts ...Option) (*Mirror, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger: nil storage ledger")
	}
	spec := storage.RecordTableSpec(table)
	m := &Mirror{
		ledger:    l,
		table:     spec.Name,
		batchSize: DefaultBatchSize,
		logf:      log.New(io.Discard, "", 0).Printf,
	}
	for _, o := range opts {
		o(m)
	}
	if err := l.EnsureTable(ctx, spec); err != nil {
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	return m, nil
}

// Table returns the ledger table name.
func (m *Mirror) Table() string { return m.table }

// Record inserts one record. A record already in the ledger is skipped
// without error.
func (m *Mirror) Record(ctx context.Context, rec recordstore.Record) error {
	n, err := m.ledger.InsertRows(ctx, m.table, storage.RecordColumns(), [][]any{storage.RecordRow(rec)}, []string{storage.RowHashColumn})
	if err != nil {
		return err
	}
	metrics.RecordRows("ledger_inserted", int(n))
	m.logf("stage=ledger_record table=%s domain=%q inserted=%d", m.table, rec.Domain, n)
	return nil
}

// SyncResult summarises a SyncDir run.
type SyncResult struct {
	Files    int
	Read     int
	Inserted int64
	Total    int64
}

// SyncDir backfills every per-domain file under dir. Files are processed in
// name order and rows in file order; ctx is checked between batches.
func (m *Mirror) SyncDir(ctx context.Context, dir string) (res SyncResult, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordStep("ledger_sync", status, time.Since(start))
	}()

	byFile, err := recordstore.ReadDir(dir)
	if err != nil {
		return res, err
	}
	names := make([]string, 0, len(byFile))
	for name := range byFile {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := storage.RecordColumns()
	dedupe := []string{storage.RowHashColumn}
	for _, name := range names {
		recs := byFile[name]
		res.Files++
		res.Read += len(recs)

		var inserted int64
		for start := 0; start < len(recs); start += m.batchSize {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			end := min(start+m.batchSize, len(recs))
			rows := make([][]any, 0, end-start)
			for _, r := range recs[start:end] {
				rows = append(rows, storage.RecordRow(r))
			}
			n, err := m.ledger.InsertRows(ctx, m.table, cols, rows, dedupe)
			inserted += n
			if err != nil {
				res.Inserted += inserted
				return res, fmt.Errorf("sync %s: %w", name, err)
			}
		}
		res.Inserted += inserted
		metrics.RecordRows("ledger_read", len(recs))
		metrics.RecordRows("ledger_inserted", int(inserted))
		m.logf("stage=ledger_sync file=%s rows=%d inserted=%d", name, len(recs), inserted)
	}

	res.Total, err = m.ledger.CountRows(ctx, m.table)
	if err != nil {
		return res, err
	}
	return res, nil
}
