// Package recordstore appends distractor records to per-domain CSV files.
//
// Files are append-only: the header is written once, when the file is
// created, and existing rows are never rewritten. Each Append encodes its
// bytes in memory first and hands them to the OS in a single write.
package recordstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is where per-domain distractor files live.
const DefaultDir = "data/distractors"

// UnknownDomain names the file used for records with a blank domain.
const UnknownDomain = "unknown"

// Append writes record as one CSV row to path, creating the parent directory
// and, for a new file, the header row in columns order.
//
// Fields of record not named in columns are ignored; columns record lacks
// are written as empty strings.
func Append(path string, record map[string]string, columns []string) error {
	if len(columns) == 0 {
		return errors.New("recordstore: no columns")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	newFile := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		newFile = true
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if newFile {
		if err := cw.Write(columns); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = record[c]
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// DomainPath returns <dir>/<domain>.csv. A blank domain maps to
// UnknownDomain; path separators are replaced so the file stays inside dir.
func DomainPath(dir, domain string) string {
	return filepath.Join(dir, DomainFileName(domain))
}

// DomainFileName is the base name DomainPath uses for domain.
func DomainFileName(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		d = UnknownDomain
	}
	d = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, d)
	if d == "." || d == ".." {
		d = strings.Repeat("_", len(d))
	}
	return d + ".csv"
}
