// Command probe prints a quick health report for a CSV dataset: header
// normalization, which tools can consume it, domain spread, conversation
// parse rates and per-column uniqueness.
//
// Example:
//
//	probe -in data/source.csv -rows 5000 -require annotate
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"distractors/internal/probe"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
}

type runConfig struct {
	In      string
	MaxRows int
	Require string
}

func main() {
	os.Exit(run(os.Args[1:], deps{Stdout: os.Stdout, Stderr: os.Stderr}))
}

// run returns 0 when the report was printed (and -require is satisfied),
// 1 on read failure or missing required columns, 2 on usage errors.
func run(args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	r, err := probe.InspectFile(cfg.In, probe.Options{MaxRows: cfg.MaxRows})
	if err != nil {
		fmt.Fprintf(d.Stderr, "probe %s: %v\n", cfg.In, err)
		return 1
	}
	fmt.Fprint(d.Stdout, probe.Format(r))

	if cfg.Require != "" {
		c, _ := r.Consumer(cfg.Require)
		if !c.OK() {
			fmt.Fprintf(d.Stderr, "%s cannot read %s: missing %s\n", cfg.Require, cfg.In, strings.Join(c.Missing, ", "))
			return 1
		}
	}
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.In, "in", "", "CSV file to inspect")
	fs.IntVar(&cfg.MaxRows, "rows", 0, "sample at most this many rows (0 = all)")
	fs.StringVar(&cfg.Require, "require", "", "fail unless this consumer can read the file: annotate or combine")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.In == "" {
		return runConfig{}, errors.New("missing required -in <csv>")
	}
	if cfg.MaxRows < 0 {
		return runConfig{}, errors.New("-rows must be >= 0")
	}
	if cfg.Require != "" {
		if _, ok := probe.Consumers[cfg.Require]; !ok {
			return runConfig{}, fmt.Errorf("unknown -require %q (want annotate or combine)", cfg.Require)
		}
	}
	return cfg, nil
}
