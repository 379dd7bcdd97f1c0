// Package session holds the state of an interactive annotation session:
// the loaded source table, the currently selected row and the time of the
// last save. State is a value; every operation takes one and returns the
// next.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"distractors/internal/conversation"
	"distractors/internal/recordstore"
	"distractors/internal/table"
)

// RequiredColumns must be present, after header normalization, in every
// source table.
var RequiredColumns = []string{"domain", "scenario", "system_instruction", "conversation"}

var (
	// ErrEmptyTable is returned when selecting from a table with no rows.
	ErrEmptyTable = errors.New("table has no rows")
	// ErrNoSelection is returned when an operation needs a selected row.
	ErrNoSelection = errors.New("no row selected")
	// ErrBlankDistractor is returned when saving an empty distractor.
	ErrBlankDistractor = errors.New("distractor text is blank")
)

// State is one session snapshot. The zero value has nothing loaded.
type State struct {
	Table table.Table
	// Current is the selected row index, or -1.
	Current int
	// LastSaved is zero until the current row has been saved.
	LastSaved time.Time
}

// RecordSink receives records after they are appended to disk.
type RecordSink interface {
	Record(ctx context.Context, rec recordstore.Record) error
}

// Load reads a source CSV, normalizes its headers and checks the required
// columns. A *table.SchemaError is returned for missing columns.
func Load(r io.Reader) (State, error) {
	t, err := table.ReadCSV(r)
	if err != nil {
		return State{Current: -1}, err
	}
	return FromTable(t)
}

// FromTable validates an already loaded table.
func FromTable(t table.Table) (State, error) {
	t = table.NormalizeHeaders(t)
	if err := table.RequireColumns(t, RequiredColumns...); err != nil {
		return State{Current: -1}, err
	}
	return State{Table: t, Current: -1}, nil
}

// NewRand returns the row selection source. seed 0 means time-seeded;
// any other value gives a reproducible sequence.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// SelectRandomRow returns a uniformly random row index of t.
func SelectRandomRow(t table.Table, rng *rand.Rand) (int, error) {
	if t.Len() == 0 {
		return -1, ErrEmptyTable
	}
	return rng.IntN(t.Len()), nil
}

// Pick selects a new random row and clears LastSaved.
func (s State) Pick(rng *rand.Rand) (State, error) {
	i, err := SelectRandomRow(s.Table, rng)
	if err != nil {
		return s, err
	}
	s.Current = i
	s.LastSaved = time.Time{}
	return s, nil
}

// Row returns the selected row keyed by column.
func (s State) Row() (map[string]string, bool) {
	if s.Current < 0 || s.Current >= s.Table.Len() {
		return nil, false
	}
	return s.Table.RowMap(s.Current), true
}

// Domain is the selected row's trimmed domain, or recordstore.UnknownDomain.
func (s State) Domain() string {
	row, ok := s.Row()
	if !ok {
		return recordstore.UnknownDomain
	}
	if d := strings.TrimSpace(row["domain"]); d != "" {
		return d
	}
	return recordstore.UnknownDomain
}

// Conversation parses the selected row's conversation field.
func (s State) Conversation() (conversation.Value, bool) {
	row, ok := s.Row()
	if !ok {
		return conversation.Value{}, false
	}
	return conversation.Parse(row["conversation"]), true
}

// Save appends text as a distractor for the selected row to the domain
// file under dir, then forwards the record to sink when it is non-nil.
//
// The record is on disk before the sink is called; a sink error is returned
// alongside the record and the advanced state.
func Save(ctx context.Context, s State, dir, text string, now time.Time, sink RecordSink) (State, recordstore.Record, string, error) {
	row, ok := s.Row()
	if !ok {
		return s, recordstore.Record{}, "", ErrNoSelection
	}
	if strings.TrimSpace(text) == "" {
		return s, recordstore.Record{}, "", ErrBlankDistractor
	}

	rec, err := recordstore.NewRecord(row, text, now)
	if err != nil {
		return s, recordstore.Record{}, "", err
	}
	path, err := recordstore.AppendRecord(dir, rec)
	if err != nil {
		return s, recordstore.Record{}, "", fmt.Errorf("save distractor: %w", err)
	}
	s.LastSaved = now

	if sink != nil {
		if err := sink.Record(ctx, rec); err != nil {
			return s, rec, path, fmt.Errorf("mirror record: %w", err)
		}
	}
	return s, rec, path, nil
}
