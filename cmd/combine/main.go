// Command combine samples rows from every CSV in an input directory, picks
// one candidate distractor per row and writes a single combined CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"distractors/internal/combine"
	"distractors/internal/metrics"
	"distractors/internal/metrics/datadog"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	Getenv         func(string) string
}

// runConfig holds the parsed flags. set records which flags were given
// explicitly so they can override a config file.
type runConfig struct {
	ConfigPath     string
	InputDir       string
	Output         string
	RowsPerFile    int
	Seed           int64
	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration
	Verbose        bool

	set map[string]bool
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		Getenv: os.Getenv,
	})
	os.Exit(code)
}

// run executes one combination and returns an exit code.
//
// Exit codes:
//   - 0: success, or nothing to do (no input files / no surviving rows).
//   - 1: runtime failure (unreadable input dir, output write failure).
//   - 2: usage or configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	opts, err := resolveOptions(cfg)
	if err != nil {
		fmt.Fprintf(d.Stderr, "config error: %v\n", err)
		return 2
	}

	backendName := resolveBackend(cfg.MetricsBackend, d.Getenv)
	switch backendName {
	case "none":
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tagsCSV := cfg.DDTagsCSV
		if tagsCSV == "" {
			tagsCSV = d.Getenv("METRICS_TAGS")
		}
		tags := append(datadog.ParseTagsCSV(tagsCSV), "tool:combine")
		backend, err := d.BackendFactory(ctx, "combine", tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = metrics.Flush()
			_ = backend.Close()
			metrics.SetBackend(nil)
		}()
	default:
		fmt.Fprintf(d.Stderr, "unknown metrics backend %q (want none or datadog)\n", backendName)
		return 2
	}

	created, err := ensureInputDir(opts.InputDir)
	if err != nil {
		fmt.Fprintf(d.Stderr, "input directory: %v\n", err)
		return 1
	}
	if created {
		fmt.Fprintf(d.Stdout, "created input directory %s; add CSV files and run again\n", opts.InputDir)
	}

	if cfg.Verbose {
		opts.Logger = log.New(d.Stderr, "combine: ", log.LstdFlags)
	}

	res, err := combine.Run(ctx, opts)
	for _, diag := range res.Skipped {
		fmt.Fprintf(d.Stderr, "skipped %s\n", diag)
	}

	switch {
	case errors.Is(err, combine.ErrNoInput):
		fmt.Fprintf(d.Stdout, "no CSV files found in %s; nothing written\n", opts.InputDir)
		return 0
	case errors.Is(err, combine.ErrNoOutput):
		fmt.Fprintf(d.Stdout, "no rows survived processing (%d skipped); nothing written\n", len(res.Skipped))
		return 0
	case err != nil:
		fmt.Fprintf(d.Stderr, "combine failed: %v\n", err)
		return 1
	}

	for _, f := range res.Files {
		if f.Short {
			fmt.Fprintf(d.Stdout, "note: %s has %d rows; used all of them\n", f.Path, f.Rows)
		}
	}
	fmt.Fprintf(d.Stdout, "wrote %d rows from %d files to %s (columns from %s, run %s)\n",
		res.Rows, len(res.Files), res.Output, res.SchemaFrom, res.RunID)
	return 0
}

// parseFlags parses command arguments into a runConfig.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("combine", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "optional JSON config file (flags override it)")
	fs.StringVar(&cfg.InputDir, "input", combine.DefaultInputDir, "directory of input CSV files")
	fs.StringVar(&cfg.Output, "output", combine.DefaultOutput, "combined CSV output path")
	fs.IntVar(&cfg.RowsPerFile, "rows", combine.DefaultRowsPerFile, "rows sampled per input file")
	fs.Int64Var(&cfg.Seed, "seed", combine.DefaultSeed, "sampling seed")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "", "metrics backend: none or datadog (default from METRICS_BACKEND, else none)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "extra Datadog tags CSV (default from METRICS_TAGS)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", time.Minute, "Datadog flush interval")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg, nil
}

// resolveOptions merges the config file (if any) with explicitly set flags.
func resolveOptions(cfg runConfig) (combine.Options, error) {
	var fileCfg combine.Config
	if cfg.ConfigPath != "" {
		c, err := combine.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return combine.Options{}, err
		}
		fileCfg = c
	}
	opts := fileCfg.Options()

	if cfg.ConfigPath == "" || cfg.set["input"] {
		opts.InputDir = os.ExpandEnv(cfg.InputDir)
	}
	if cfg.ConfigPath == "" || cfg.set["output"] {
		opts.Output = os.ExpandEnv(cfg.Output)
	}
	if cfg.ConfigPath == "" || cfg.set["rows"] {
		opts.RowsPerFile = cfg.RowsPerFile
	}
	if cfg.ConfigPath == "" || cfg.set["seed"] {
		opts.Seed = cfg.Seed
	}
	if opts.RowsPerFile == 0 {
		return combine.Options{}, errors.New("-rows must be > 0")
	}
	return opts, opts.Validate()
}

// resolveBackend applies flag -> METRICS_BACKEND -> "none".
func resolveBackend(flagValue string, getenv func(string) string) string {
	v := strings.TrimSpace(flagValue)
	if v == "" {
		v = strings.TrimSpace(getenv("METRICS_BACKEND"))
	}
	if v == "" {
		return "none"
	}
	return strings.ToLower(v)
}

// ensureInputDir creates dir when it does not exist and reports whether it did.
func ensureInputDir(dir string) (bool, error) {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return false, fmt.Errorf("%s is not a directory", dir)
		}
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}
