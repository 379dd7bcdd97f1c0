package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"distractors/internal/recordstore"
	"distractors/internal/storage"
	"distractors/internal/table"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

func writeSource(t *testing.T, cols []string, rows [][]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "source.csv")
	if err := table.WriteFileAtomic(p, table.Table{Columns: cols, Rows: rows}); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p
}

func travelSource(t *testing.T) string {
	return writeSource(t,
		[]string{"Domain", "Scenario", "System Instruction", "Conversation"},
		[][]string{{"travel", "Booking a flight", "Only discuss travel.", `[{"role":"user","content":"Book me a **flight**"}]`}},
	)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing_source", args: nil, wantErr: "missing required -source"},
		{name: "both_distractor_inputs", args: []string{"-source", "s", "-distractor", "x", "-distractor-file", "f"}, wantErr: "mutually exclusive"},
		{name: "ok", args: []string{"-source", "s", "-seed", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := parseFlags(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err=%v want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			if cfg.Dir != recordstore.DefaultDir || cfg.Seed != 3 {
				t.Fatalf("cfg=%+v", cfg)
			}
		})
	}
}

func TestRun_PreviewOnly(t *testing.T) {
	t.Parallel()

	src := travelSource(t)
	dir := t.TempDir()
	htmlPath := filepath.Join(t.TempDir(), "preview.html")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-source", src, "-dir", dir, "-html", htmlPath, "-seed", "1"}, deps{Stdout: &stdout, Stderr: &stderr, Now: fixedNow})
	if code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Domain: travel", "Booking a flight", "Only discuss travel.", "Book me a **flight**", "nothing saved"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q:\n%s", want, out)
		}
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "<strong>flight</strong>") {
		t.Fatalf("html=%s", html)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("preview must not write records, found %d files", len(entries))
	}
}

func TestRun_SavesDistractor(t *testing.T) {
	t.Parallel()

	src := travelSource(t)
	dir := t.TempDir()

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-source", src, "-dir", dir, "-distractor", "  Ask about hotel loyalty points  "}, deps{Stdout: &stdout, Now: fixedNow})
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	got, err := recordstore.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	recs := got["travel"]
	if len(recs) != 1 {
		t.Fatalf("records=%v", got)
	}
	r := recs[0]
	if r.Distractor != "Ask about hotel loyalty points" || r.Scenario != "Booking a flight" || r.Timestamp != "2024-05-01T09:30:00Z" {
		t.Fatalf("record=%+v", r)
	}
	if !strings.Contains(stdout.String(), "saved travel distractor to "+filepath.Join(dir, "travel.csv")) {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRun_DistractorFromFile(t *testing.T) {
	t.Parallel()

	src := travelSource(t)
	dir := t.TempDir()
	f := filepath.Join(t.TempDir(), "d.txt")
	if err := os.WriteFile(f, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := run(context.Background(), []string{"-source", src, "-dir", dir, "-distractor-file", f}, deps{Now: fixedNow}); code != 0 {
		t.Fatalf("code=%d", code)
	}
	got, _ := recordstore.ReadDir(dir)
	if len(got["travel"]) != 1 || got["travel"][0].Distractor != "line one\nline two" {
		t.Fatalf("records=%v", got)
	}
}

func TestRun_BlankDistractorIsRejected(t *testing.T) {
	t.Parallel()

	src := travelSource(t)
	dir := t.TempDir()
	f := filepath.Join(t.TempDir(), "blank.txt")
	if err := os.WriteFile(f, []byte(" \n\t"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-source", src, "-dir", dir, "-distractor-file", f}, deps{Stderr: &stderr, Now: fixedNow})
	if code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stderr.String(), "blank") {
		t.Fatalf("stderr=%q", stderr.String())
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("blank distractor must not be saved")
	}
}

func TestRun_SchemaErrorNamesMissingColumns(t *testing.T) {
	t.Parallel()

	src := writeSource(t, []string{"domain", "scenario"}, [][]string{{"travel", "x"}})

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-source", src}, deps{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stderr.String(), "invalid source") || !strings.Contains(stderr.String(), "conversation") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRun_EmptySource(t *testing.T) {
	t.Parallel()

	src := writeSource(t, []string{"domain", "scenario", "system_instruction", "conversation"}, nil)
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-source", src}, deps{Stderr: &stderr}); code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stderr.String(), "select row") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRun_MirrorsIntoSQLiteLedger(t *testing.T) {
	t.Parallel()

	src := travelSource(t)
	dir := t.TempDir()
	dsn := filepath.Join(t.TempDir(), "ledger.db")

	args := []string{"-source", src, "-dir", dir, "-distractor", "x", "-ledger-kind", "sqlite", "-ledger-dsn", dsn}
	if code := run(context.Background(), args, deps{Now: fixedNow}); code != 0 {
		t.Fatalf("code=%d", code)
	}

	l, err := storage.NewLedger(context.Background(), storage.LedgerConfig{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()
	n, err := l.CountRows(context.Background(), storage.DefaultRecordTable)
	if err != nil || n != 1 {
		t.Fatalf("ledger rows=%d err=%v", n, err)
	}
}

func TestRun_LedgerOpenFailure(t *testing.T) {
	t.Parallel()

	open := func(context.Context, storage.LedgerConfig) (storage.Ledger, error) {
		return nil, errors.New("connection refused")
	}
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-source", travelSource(t), "-dir", t.TempDir(), "-distractor", "x", "-ledger-kind", "postgres", "-ledger-dsn", "postgres://nowhere"}, deps{Stderr: &stderr, OpenLedger: open})
	if code != 1 || !strings.Contains(stderr.String(), "connection refused") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}

func TestRun_LedgerWithoutDSN(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	getenv := func(string) string { return "" }
	code := run(context.Background(), []string{"-source", travelSource(t), "-ledger-kind", "sqlite"}, deps{Stderr: &stderr, Getenv: getenv})
	if code != 2 || !strings.Contains(stderr.String(), "LEDGER_DSN") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}

func TestRun_LedgerDSNFromEnvironment(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "env.db")
	getenv := func(k string) string {
		if k == storage.EnvDSN {
			return dsn
		}
		return ""
	}
	var got storage.LedgerConfig
	open := func(ctx context.Context, cfg storage.LedgerConfig) (storage.Ledger, error) {
		got = cfg
		return storage.NewLedger(ctx, cfg)
	}
	args := []string{"-source", travelSource(t), "-dir", t.TempDir(), "-distractor", "x", "-ledger-kind", "sqlite"}
	if code := run(context.Background(), args, deps{Getenv: getenv, OpenLedger: open, Now: fixedNow}); code != 0 {
		t.Fatalf("code=%d", code)
	}
	if got.Kind != "sqlite" || got.DSN != dsn {
		t.Fatalf("ledger config=%+v", got)
	}
}
