// Command annotate is one step of the review loop: it loads a source
// dataset, picks a random row, shows its scenario, system instruction and
// conversation, and saves a distractor for that row to the per-domain store.
//
// Without -distractor or -distractor-file it only previews the row.
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

	"distractors/internal/conversation"
	"distractors/internal/ledger"
	"distractors/internal/recordstore"
	"distractors/internal/session"
	"distractors/internal/storage"
	_ "distractors/internal/storage/all"
	"distractors/internal/table"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	Getenv func(string) string

	OpenLedger func(ctx context.Context, cfg storage.LedgerConfig) (storage.Ledger, error)
}

type runConfig struct {
	Source         string
	Seed           int64
	Dir            string
	Distractor     string
	DistractorFile string
	HTMLOut        string
	LedgerKind     string
	LedgerDSN      string
	LedgerTable    string
	Verbose        bool
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Now:        time.Now,
		Getenv:     os.Getenv,
		OpenLedger: storage.NewLedger,
	})
	os.Exit(code)
}

// run executes one annotation step and returns an exit code.
//
// Exit codes:
//   - 0: row shown (and distractor saved, when given).
//   - 1: schema, I/O or ledger failure; a blank distractor.
//   - 2: usage error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.OpenLedger == nil {
		d.OpenLedger = storage.NewLedger
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	var dsn string
	if cfg.LedgerKind != "" {
		var ok bool
		dsn, ok, err = storage.ResolveDSN(cfg.LedgerKind, cfg.LedgerDSN, d.Getenv)
		if err != nil {
			fmt.Fprintln(d.Stderr, err.Error())
			return 2
		}
		if !ok {
			fmt.Fprintf(d.Stderr, "-ledger-kind needs -ledger-dsn or %s\n", storage.EnvDSN)
			return 2
		}
	}

	text, haveText, err := distractorText(cfg)
	if err != nil {
		fmt.Fprintf(d.Stderr, "read distractor: %v\n", err)
		return 1
	}

	st, err := loadSource(cfg.Source)
	if err != nil {
		var se *table.SchemaError
		if errors.As(err, &se) {
			fmt.Fprintf(d.Stderr, "invalid source %s: %v\n", cfg.Source, err)
		} else {
			fmt.Fprintf(d.Stderr, "load source: %v\n", err)
		}
		return 1
	}

	st, err = st.Pick(session.NewRand(cfg.Seed))
	if err != nil {
		fmt.Fprintf(d.Stderr, "select row: %v\n", err)
		return 1
	}
	if err := show(d.Stdout, st); err != nil {
		fmt.Fprintf(d.Stderr, "render: %v\n", err)
		return 1
	}
	if cfg.HTMLOut != "" {
		if err := writeHTML(cfg.HTMLOut, st); err != nil {
			fmt.Fprintf(d.Stderr, "write html preview: %v\n", err)
			return 1
		}
		fmt.Fprintf(d.Stdout, "HTML preview written to %s\n", cfg.HTMLOut)
	}

	if !haveText {
		fmt.Fprintln(d.Stdout, "no distractor given; nothing saved")
		return 0
	}

	var sink session.RecordSink
	if cfg.LedgerKind != "" {
		l, err := d.OpenLedger(ctx, storage.LedgerConfig{Kind: cfg.LedgerKind, DSN: os.ExpandEnv(dsn)})
		if err != nil {
			fmt.Fprintf(d.Stderr, "open ledger: %v\n", err)
			return 1
		}
		defer l.Close()

		var opts []ledger.Option
		if cfg.Verbose {
			opts = append(opts, ledger.WithLogger(log.New(d.Stderr, "annotate: ", log.LstdFlags)))
		}
		m, err := ledger.New(ctx, l, cfg.LedgerTable, opts...)
		if err != nil {
			fmt.Fprintf(d.Stderr, "%v\n", err)
			return 1
		}
		sink = m
	}

	_, rec, path, err := session.Save(ctx, st, cfg.Dir, text, d.Now(), sink)
	switch {
	case errors.Is(err, session.ErrBlankDistractor):
		fmt.Fprintln(d.Stderr, "warning: distractor is blank; nothing saved")
		return 1
	case err != nil && path != "":
		fmt.Fprintf(d.Stdout, "saved %s distractor to %s\n", rec.Domain, path)
		fmt.Fprintf(d.Stderr, "ledger: %v\n", err)
		return 1
	case err != nil:
		fmt.Fprintf(d.Stderr, "%v\n", err)
		return 1
	}
	fmt.Fprintf(d.Stdout, "saved %s distractor to %s\n", rec.Domain, path)
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Source, "source", "", "source dataset CSV (domain, scenario, system_instruction, conversation)")
	fs.Int64Var(&cfg.Seed, "seed", 0, "row selection seed (0 = random)")
	fs.StringVar(&cfg.Dir, "dir", recordstore.DefaultDir, "directory of per-domain distractor files")
	fs.StringVar(&cfg.Distractor, "distractor", "", "distractor text to save for the selected row")
	fs.StringVar(&cfg.DistractorFile, "distractor-file", "", "read the distractor text from this file ('-' for stdin)")
	fs.StringVar(&cfg.HTMLOut, "html", "", "also write an HTML preview of the conversation here")
	fs.StringVar(&cfg.LedgerKind, "ledger-kind", "", "mirror saved records into a SQL ledger: sqlite, postgres or mssql")
	fs.StringVar(&cfg.LedgerDSN, "ledger-dsn", "", "ledger DSN (default from LEDGER_DSN or LEDGER_DSN_* components)")
	fs.StringVar(&cfg.LedgerTable, "ledger-table", storage.DefaultRecordTable, "ledger table name")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.Source == "" {
		return runConfig{}, errors.New("missing required -source <csv>")
	}
	if cfg.Distractor != "" && cfg.DistractorFile != "" {
		return runConfig{}, errors.New("-distractor and -distractor-file are mutually exclusive")
	}
	return cfg, nil
}

// distractorText returns the text to save and whether one was given at all.
func distractorText(cfg runConfig) (string, bool, error) {
	switch {
	case cfg.DistractorFile == "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), true, err
	case cfg.DistractorFile != "":
		b, err := os.ReadFile(cfg.DistractorFile)
		return string(b), true, err
	case cfg.Distractor != "":
		return cfg.Distractor, true, nil
	}
	return "", false, nil
}

func loadSource(path string) (session.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return session.State{Current: -1}, err
	}
	defer f.Close()
	return session.Load(f)
}

func show(w io.Writer, st session.State) error {
	row, _ := st.Row()
	fmt.Fprintf(w, "Domain: %s\n\n", st.Domain())
	fmt.Fprintf(w, "Scenario:\n%s\n\n", row["scenario"])
	fmt.Fprintf(w, "System instruction:\n%s\n\n", row["system_instruction"])
	if _, err := fmt.Fprintln(w, "Conversation:"); err != nil {
		return err
	}
	return conversation.RenderText(w, row["conversation"])
}

func writeHTML(path string, st session.State) (err error) {
	row, _ := st.Row()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return conversation.RenderHTML(f, row["conversation"])
}
