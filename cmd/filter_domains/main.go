// Command filter_domains keeps the rows of a labeled corpus export whose
// domain is on an allow-list and writes them to a new CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"distractors/internal/acquire"
	"distractors/internal/metrics"
	"distractors/internal/table"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
}

type runConfig struct {
	In      string
	Out     string
	Domains []string
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{Stdout: os.Stdout, Stderr: os.Stderr}))
}

// run returns 0 on success, 1 on I/O or schema failure and 2 on usage errors.
func run(_ context.Context, args []string, d deps) int {
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

	in, err := table.ReadFile(cfg.In)
	if err != nil {
		fmt.Fprintf(d.Stderr, "read %s: %v\n", cfg.In, err)
		return 1
	}
	out, err := acquire.FilterDomains(in, cfg.Domains)
	if err != nil {
		fmt.Fprintf(d.Stderr, "filter %s: %v\n", cfg.In, err)
		return 1
	}
	if err := table.WriteFileAtomic(cfg.Out, out); err != nil {
		fmt.Fprintf(d.Stderr, "write %s: %v\n", cfg.Out, err)
		return 1
	}
	metrics.RecordRows("filtered_in", in.Len())
	metrics.RecordRows("filtered_kept", out.Len())

	fmt.Fprintf(d.Stdout, "kept %d of %d rows -> %s\n", out.Len(), in.Len(), cfg.Out)
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("filter_domains", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	var domains string
	fs.StringVar(&cfg.In, "in", "", "input CSV export")
	fs.StringVar(&cfg.Out, "out", "", "filtered CSV output")
	fs.StringVar(&domains, "domains", strings.Join(acquire.DefaultDomains, ","), "comma-separated domain allow-list")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if cfg.In == "" || cfg.Out == "" {
		return runConfig{}, errors.New("missing required -in <csv> and -out <csv>")
	}
	cfg.Domains = acquire.ParseDomains(domains)
	if len(cfg.Domains) == 0 {
		return runConfig{}, errors.New("-domains must name at least one domain")
	}
	return cfg, nil
}
