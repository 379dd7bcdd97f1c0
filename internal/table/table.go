// Package table holds the in-memory CSV table used across the distractor
// tooling: reading exports, canonicalising headers, validating required
// columns and writing results back out.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
)

// Table is a header plus positional string rows.
//
// Every row read by ReadCSV has exactly len(Columns) cells. Tables built by
// hand should keep the same shape; Get tolerates short rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Get returns the cell at row i for column name.
// ok is false when the column does not exist.
func (t Table) Get(i int, name string) (string, bool) {
	ci := t.Index(name)
	if ci < 0 {
		return "", false
	}
	row := t.Rows[i]
	if ci >= len(row) {
		return "", true
	}
	return row[ci], true
}

// RowMap returns row i keyed by column name.
func (t Table) RowMap(i int) map[string]string {
	row := t.Rows[i]
	m := make(map[string]string, len(t.Columns))
	for ci, c := range t.Columns {
		if ci < len(row) {
			m[c] = row[ci]
		} else {
			m[c] = ""
		}
	}
	return m
}

var lower = cases.Lower(language.Und)

// NormalizeHeader canonicalises a single column name: surrounding whitespace
// trimmed, lower-cased, internal whitespace runs collapsed to one underscore.
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = lower.String(h)
	return strings.Join(strings.Fields(h), "_")
}

// NormalizeHeaders returns a copy of t with canonical column names.
// Column and row order are preserved; row storage is shared with t.
func NormalizeHeaders(t Table) Table {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = NormalizeHeader(c)
	}
	return Table{Columns: cols, Rows: t.Rows}
}

// SchemaError reports required columns missing from an ingested table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// RequireColumns returns a *SchemaError naming every column in names that t
// does not have, in the order given.
func RequireColumns(t Table, names ...string) error {
	var missing []string
	for _, n := range names {
		if t.Index(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// ErrNoHeader is returned when a CSV source has no header row at all.
var ErrNoHeader = errors.New("csv has no header row")

// ReadCSV reads a comma-delimited table with a header on the first row.
//
// A leading byte-order mark (UTF-8 or UTF-16) selects the decoding and is
// stripped; without one the input is read as UTF-8. Ragged records are padded
// with empty cells or truncated to the header width.
func ReadCSV(r io.Reader) (Table, error) {
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err == io.EOF {
		return Table{}, ErrNoHeader
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	t := Table{Columns: append([]string(nil), hdr...)}
	width := len(t.Columns)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("csv read: %w", err)
		}
		row := make([]string, width)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile opens path and reads it with ReadCSV.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes the header followed by every row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFileAtomic writes t to path through a temp file in the same directory
// followed by a rename, so readers never observe a partially written file.
// The parent directory is created when missing.
func WriteFileAtomic(path string, t Table) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteCSV(tmp, t); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
