package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"distractors/internal/table"
)

func writeCSV(t *testing.T, cols []string, rows [][]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.csv")
	if err := table.WriteFileAtomic(p, table.Table{Columns: cols, Rows: rows}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return p
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing_in", args: nil, wantErr: "missing required -in"},
		{name: "negative_rows", args: []string{"-in", "x", "-rows", "-1"}, wantErr: "-rows must be >= 0"},
		{name: "unknown_consumer", args: []string{"-in", "x", "-require", "export"}, wantErr: "unknown -require"},
		{name: "help", args: []string{"-h"}, wantErr: "Usage of probe"},
		{name: "ok", args: []string{"-in", "x", "-require", "combine"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseFlags(tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("parseFlags: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_Report(t *testing.T) {
	t.Parallel()

	in := writeCSV(t,
		[]string{"Domain", "Scenario", "System Instruction", "Conversation"},
		[][]string{{"travel", "a", "i", `[{"role":"user","content":"hi"}]`}},
	)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-in", in, "-require", "annotate"}, deps{Stdout: &stdout, Stderr: &stderr}); code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr.String())
	}
	for _, want := range []string{"annotate: ok", "domains: travel=1", "conversation: structured=1"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestRun_RequireFails(t *testing.T) {
	t.Parallel()

	in := writeCSV(t, []string{"domain"}, [][]string{{"travel"}})
	var stdout, stderr bytes.Buffer
	code := run([]string{"-in", in, "-require", "combine"}, deps{Stdout: &stdout, Stderr: &stderr})
	if code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stderr.String(), "combine cannot read") || !strings.Contains(stderr.String(), "distractors") {
		t.Fatalf("stderr=%q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "rows=1") {
		t.Fatalf("report should still print, stdout=%q", stdout.String())
	}
}

func TestRun_MissingFile(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	if code := run([]string{"-in", filepath.Join(t.TempDir(), "nope.csv")}, deps{Stderr: &stderr}); code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stderr.String(), "probe ") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}
