package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"distractors/internal/metrics"
	"distractors/internal/table"
)

// testBackend is a minimal metrics backend used in tests.
type testBackend struct {
	closed bool
	incs   int
}

func (b *testBackend) IncCounter(string, float64, metrics.Labels)       { b.incs++ }
func (b *testBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *testBackend) Flush() error                                     { return nil }
func (b *testBackend) Close() error                                     { b.closed = true; return nil }

func noEnv(string) string { return "" }

func writeInput(t *testing.T, dir, name string, n int) {
	t.Helper()
	cols := []string{"domain", "conversation_json", "distractors"}
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{"travel", `[{"role":"user","content":"hi"}]`, `[{"bot turn":"b","distractor":"d"}]`}
	}
	if err := table.WriteFileAtomic(filepath.Join(dir, name), table.Table{Columns: cols, Rows: rows}); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, cfg runConfig)
	}{
		{
			name: "defaults",
			args: nil,
			check: func(t *testing.T, cfg runConfig) {
				if cfg.InputDir != "final" || cfg.Output != "group7_combined_data.csv" || cfg.RowsPerFile != 5 || cfg.Seed != 42 {
					t.Fatalf("cfg=%+v", cfg)
				}
				if len(cfg.set) != 0 {
					t.Fatalf("no flag set explicitly, got %v", cfg.set)
				}
			},
		},
		{
			name: "explicit_flags_tracked",
			args: []string{"-rows", "3", "-seed", "7"},
			check: func(t *testing.T, cfg runConfig) {
				if !cfg.set["rows"] || !cfg.set["seed"] || cfg.set["input"] {
					t.Fatalf("set=%v", cfg.set)
				}
			},
		},
		{name: "bad_int", args: []string{"-rows", "x"}, wantErr: "invalid value"},
		{name: "help", args: []string{"-h"}, wantErr: "Usage of combine"},
		{name: "positional", args: []string{"extra"}, wantErr: "unexpected arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := parseFlags(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err=%v want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestResolveOptions_FlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(cfgPath, []byte(`{"input_dir":"from_file","output":"file.csv","rows_per_file":9,"seed":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseFlags([]string{"-config", cfgPath, "-rows", "2"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	opts, err := resolveOptions(cfg)
	if err != nil {
		t.Fatalf("resolveOptions: %v", err)
	}
	if opts.InputDir != "from_file" || opts.Output != "file.csv" || opts.Seed != 1 {
		t.Fatalf("config file values lost: %+v", opts)
	}
	if opts.RowsPerFile != 2 {
		t.Fatalf("rows=%d want flag value 2", opts.RowsPerFile)
	}

	cfg, _ = parseFlags([]string{"-rows", "0"})
	if _, err := resolveOptions(cfg); err == nil {
		t.Fatalf("expected error for -rows 0")
	}
}

func TestResolveBackend(t *testing.T) {
	t.Parallel()

	env := func(v string) func(string) string {
		return func(k string) string {
			if k == "METRICS_BACKEND" {
				return v
			}
			return ""
		}
	}
	if got := resolveBackend("", env("")); got != "none" {
		t.Fatalf("got %q", got)
	}
	if got := resolveBackend("", env("Datadog")); got != "datadog" {
		t.Fatalf("got %q", got)
	}
	if got := resolveBackend("none", env("datadog")); got != "none" {
		t.Fatalf("flag must win, got %q", got)
	}
}

func TestRun_WritesCombinedOutput(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	writeInput(t, in, "a.csv", 8)
	writeInput(t, in, "b.csv", 2)
	out := filepath.Join(t.TempDir(), "combined.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-input", in, "-output", out, "-rows", "3"}, deps{Stdout: &stdout, Stderr: &stderr, Getenv: noEnv})
	if code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr.String())
	}
	got, err := table.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got.Len() != 5 {
		t.Fatalf("rows=%d want 5", got.Len())
	}
	if !strings.Contains(stdout.String(), "wrote 5 rows from 2 files") {
		t.Fatalf("stdout=%q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "b.csv has 2 rows") {
		t.Fatalf("short file not reported: %q", stdout.String())
	}
}

func TestRun_MissingInputDirIsCreated(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "final")
	out := filepath.Join(t.TempDir(), "combined.csv")

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-input", in, "-output", out}, deps{Stdout: &stdout, Getenv: noEnv})
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if fi, err := os.Stat(in); err != nil || !fi.IsDir() {
		t.Fatalf("input dir not created: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("no output expected, stat err=%v", err)
	}
	if !strings.Contains(stdout.String(), "created input directory") || !strings.Contains(stdout.String(), "no CSV files") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRun_NoSurvivingRowsExitsZero(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	cols := []string{"domain", "conversation_json", "distractors"}
	if err := table.WriteFileAtomic(filepath.Join(in, "bad.csv"), table.Table{Columns: cols, Rows: [][]string{{"travel", "[]", "not json"}}}); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "combined.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-input", in, "-output", out}, deps{Stdout: &stdout, Stderr: &stderr, Getenv: noEnv})
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(stdout.String(), "no rows survived") {
		t.Fatalf("stdout=%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "skipped file=") {
		t.Fatalf("diagnostics not printed: %q", stderr.String())
	}
}

func TestRun_UsageAndConfigErrors(t *testing.T) {
	t.Parallel()

	if code := run(context.Background(), []string{"-rows", "x"}, deps{Getenv: noEnv}); code != 2 {
		t.Fatalf("bad flag code=%d", code)
	}
	if code := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.json")}, deps{Getenv: noEnv}); code != 2 {
		t.Fatalf("missing config code=%d", code)
	}
	if code := run(context.Background(), []string{"-metrics-backend", "pushgateway", "-input", t.TempDir()}, deps{Getenv: noEnv}); code != 2 {
		t.Fatalf("unknown backend code=%d", code)
	}
}

// Not parallel: installs the process-wide metrics backend.
func TestRun_DatadogBackendWired(t *testing.T) {
	in := t.TempDir()
	writeInput(t, in, "a.csv", 2)
	out := filepath.Join(t.TempDir(), "combined.csv")

	b := &testBackend{}
	var gotTags []string
	factory := func(_ context.Context, job string, tags []string, _ time.Duration) (backendCloser, error) {
		if job != "combine" {
			t.Fatalf("job=%q", job)
		}
		gotTags = tags
		return b, nil
	}
	getenv := func(k string) string {
		switch k {
		case "METRICS_BACKEND":
			return "datadog"
		case "METRICS_TAGS":
			return "team:data"
		}
		return ""
	}

	code := run(context.Background(), []string{"-input", in, "-output", out}, deps{BackendFactory: factory, Getenv: getenv})
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if !b.closed || b.incs == 0 {
		t.Fatalf("backend not used/closed: %+v", b)
	}
	if strings.Join(gotTags, ",") != "team:data,tool:combine" {
		t.Fatalf("tags=%v", gotTags)
	}
}
