package storage

import (
	"fmt"
	"strings"

	"distractors/internal/recordstore"
)

// Logical column types. Each backend maps them onto its own SQL types.
const (
	// TypeText is unbounded text.
	TypeText = "text"
	// TypeKey is a short identifier that can carry a UNIQUE constraint.
	TypeKey = "key"
)

// RowHashColumn is the idempotency key of the record ledger.
const RowHashColumn = "row_hash"

// DefaultRecordTable is the ledger table name used by the tools.
const DefaultRecordTable = "distractor_records"

// TableSpec describes a ledger table.
type TableSpec struct {
	Name        string           `json:"name"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

// ColumnSpec describes one column. Nullable nil means NOT NULL.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

// ConstraintSpec is a table constraint. Only "unique" is supported.
type ConstraintSpec struct {
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

// IsNullable reports the effective nullability of c.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable != nil && *c.Nullable
}

// Validate checks the parts every backend relies on.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("table %s: column name is empty", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[n] = true
		switch c.Type {
		case TypeText, TypeKey:
		default:
			return fmt.Errorf("table %s: column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return fmt.Errorf("table %s: unique constraint requires columns", t.Name)
		}
		for _, c := range con.Columns {
			if !seen[strings.ToLower(strings.TrimSpace(c))] {
				return fmt.Errorf("table %s: constraint on unknown column %s", t.Name, c)
			}
		}
	}
	return nil
}

// RecordColumns is the ledger column order: row_hash then the record columns.
func RecordColumns() []string {
	return append([]string{RowHashColumn}, recordstore.Columns...)
}

// RecordTableSpec declares the ledger table for distractor records.
func RecordTableSpec(name string) TableSpec {
	if name == "" {
		name = DefaultRecordTable
	}
	cols := []ColumnSpec{{Name: RowHashColumn, Type: TypeKey}}
	for _, c := range recordstore.Columns {
		cols = append(cols, ColumnSpec{Name: c, Type: TypeText})
	}
	return TableSpec{
		Name:        name,
		Columns:     cols,
		Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{RowHashColumn}}},
	}
}

// RecordRow returns rec as ledger values in RecordColumns order.
func RecordRow(rec recordstore.Record) []any {
	vals := rec.Values()
	row := make([]any, 0, len(vals)+1)
	row = append(row, recordstore.RowHash(rec))
	for _, v := range vals {
		row = append(row, v)
	}
	return row
}

// CheckRows verifies that every row has one value per column.
func CheckRows(columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("insert: no columns")
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("insert: row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return nil
}
