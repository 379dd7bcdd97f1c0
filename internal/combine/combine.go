// Package combine merges per-domain distractor exports into one training
// file.
//
// Each input file contributes a fixed-seed sample of rows. For every sampled
// row one distractor candidate is chosen at random (unseeded), the
// conversation JSON is validated and re-indented, and the target instruction
// is unwrapped. Malformed rows and unreadable files are reported and skipped;
// only a failure to write the output is fatal.
//
// The output uses the column order of the last input file that was read
// successfully, in lexicographic file order. Result.SchemaFrom names it.
package combine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"distractors/internal/metrics"
	"distractors/internal/table"

	"github.com/google/uuid"
)

var (
	// ErrNoInput means the input directory holds no *.csv files.
	ErrNoInput = errors.New("no input files")
	// ErrNoOutput means no row survived processing; nothing was written.
	ErrNoOutput = errors.New("no rows survived processing")
)

// Logger is the minimal logging interface used by Run.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options configures a run. Zero values take the package defaults.
type Options struct {
	InputDir    string
	Output      string
	RowsPerFile int
	Seed        int64

	Logger Logger

	// Pick chooses the candidate for each row. nil uses an unseeded source.
	Pick Picker
}

// Diagnostic records a file or row that was skipped.
type Diagnostic struct {
	File string
	// Row is the 0-based data row index in File, or -1 for file-level issues.
	Row    int
	Reason string
}

func (d Diagnostic) String() string {
	if d.Row < 0 {
		return fmt.Sprintf("file=%s reason=%q", d.File, d.Reason)
	}
	return fmt.Sprintf("file=%s row=%d reason=%q", d.File, d.Row, d.Reason)
}

// FileReport summarizes one input file.
type FileReport struct {
	Path    string
	Rows    int
	Sampled int
	Kept    int
	// Columns is the file's header in file order.
	Columns []string
	// Short is set when the file had fewer rows than requested.
	Short bool
	// Err is set when the file could not be read; it contributed nothing.
	Err error
}

// Result describes a run.
type Result struct {
	RunID      string
	Files      []FileReport
	Rows       int
	Skipped    []Diagnostic
	Columns    []string
	SchemaFrom string
	Output     string
}

// Run executes one combination. ErrNoInput and ErrNoOutput are returned
// together with a populated Result; in both cases nothing is written.
func Run(ctx context.Context, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	pick := opts.Pick
	if pick == nil {
		pick = unseededPicker
	}
	logf := logger(opts.Logger)

	res := Result{RunID: uuid.NewString(), Output: opts.Output}
	start := time.Now()
	status := "error"
	defer func() { metrics.RecordStep("combine", status, time.Since(start)) }()

	files, err := discover(opts.InputDir)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		logf("stage=discover run=%s input=%s files=0", res.RunID, opts.InputDir)
		status = "no_input"
		return res, ErrNoInput
	}
	logf("stage=discover run=%s input=%s files=%d", res.RunID, opts.InputDir, len(files))

	var kept []map[string]string
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rep, rows, diags := processFile(path, opts, pick, logf)
		res.Files = append(res.Files, rep)
		res.Skipped = append(res.Skipped, diags...)
		if rep.Err != nil {
			metrics.RecordFile("failed")
			continue
		}
		metrics.RecordFile("read")
		kept = append(kept, rows...)
	}

	for _, rep := range res.Files {
		if rep.Err == nil {
			res.SchemaFrom = rep.Path
			res.Columns = rep.Columns
		}
	}
	metrics.RecordRows("skipped", len(res.Skipped))

	if len(kept) == 0 {
		logf("stage=combine run=%s status=no_output skipped=%d", res.RunID, len(res.Skipped))
		status = "no_output"
		return res, ErrNoOutput
	}

	out := table.Table{Columns: res.Columns, Rows: make([][]string, 0, len(kept))}
	for _, m := range kept {
		row := make([]string, len(out.Columns))
		for i, c := range out.Columns {
			row[i] = m[c]
		}
		out.Rows = append(out.Rows, row)
	}

	if err := table.WriteFileAtomic(opts.Output, out); err != nil {
		return res, fmt.Errorf("write combined output: %w", err)
	}
	res.Rows = len(out.Rows)
	metrics.RecordRows("written", res.Rows)
	status = "ok"

	logf("stage=write run=%s output=%s rows=%d schema_from=%s duration=%s",
		res.RunID, opts.Output, res.Rows, filepath.Base(res.SchemaFrom), time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

func processFile(path string, opts Options, pick Picker, logf func(string, ...any)) (FileReport, []map[string]string, []Diagnostic) {
	rep := FileReport{Path: path}
	name := filepath.Base(path)

	t, err := table.ReadFile(path)
	if err != nil {
		rep.Err = err
		logf("stage=read file=%s status=error err=%v", name, err)
		return rep, nil, []Diagnostic{{File: path, Row: -1, Reason: err.Error()}}
	}
	rep.Rows = t.Len()
	rep.Columns = append([]string(nil), t.Columns...)

	if t.Len() < opts.RowsPerFile {
		rep.Short = true
		logf("stage=sample file=%s status=warn rows=%d wanted=%d using=all", name, t.Len(), opts.RowsPerFile)
	}
	idx := sampleIndices(t.Len(), opts.RowsPerFile, opts.Seed)
	rep.Sampled = len(idx)
	metrics.RecordRows("sampled", len(idx))

	var (
		rows  []map[string]string
		diags []Diagnostic
	)
	for _, i := range idx {
		out, err := processRow(t.RowMap(i), pick)
		if err != nil {
			logf("stage=row file=%s row=%d status=skipped reason=%q", name, i, err)
			diags = append(diags, Diagnostic{File: path, Row: i, Reason: err.Error()})
			continue
		}
		rows = append(rows, out)
	}
	rep.Kept = len(rows)
	logf("stage=file file=%s rows=%d sampled=%d kept=%d", name, rep.Rows, rep.Sampled, rep.Kept)
	return rep, rows, diags
}

// discover lists *.csv regular files in dir in lexicographic order.
// A missing directory is reported as no input.
func discover(dir string) ([]string, error) {
	fi, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat input dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	out := matches[:0]
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.Mode().IsRegular() {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func logger(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}
