// Command ledger_sync backfills the SQL record ledger from the per-domain
// distractor files. Rows already in the ledger are skipped, so it is safe to
// run repeatedly.
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

	"distractors/internal/ledger"
	"distractors/internal/recordstore"
	"distractors/internal/storage"
	_ "distractors/internal/storage/all"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	OpenLedger func(ctx context.Context, cfg storage.LedgerConfig) (storage.Ledger, error)
}

type runConfig struct {
	Dir       string
	Kind      string
	DSN       string
	Table     string
	BatchSize int
	Verbose   bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Getenv:     os.Getenv,
		OpenLedger: storage.NewLedger,
	}))
}

// run returns 0 on success, 1 on ledger or I/O failure and 2 on usage errors.
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
	if d.OpenLedger == nil {
		d.OpenLedger = storage.NewLedger
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	dsn, ok, err := storage.ResolveDSN(cfg.Kind, cfg.DSN, d.Getenv)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	if !ok {
		fmt.Fprintf(d.Stderr, "missing ledger DSN: pass -dsn or set %s\n", storage.EnvDSN)
		return 2
	}

	l, err := d.OpenLedger(ctx, storage.LedgerConfig{Kind: cfg.Kind, DSN: os.ExpandEnv(dsn)})
	if err != nil {
		fmt.Fprintf(d.Stderr, "open ledger: %v\n", err)
		return 1
	}
	defer l.Close()

	opts := []ledger.Option{ledger.WithBatchSize(cfg.BatchSize)}
	if cfg.Verbose {
		opts = append(opts, ledger.WithLogger(log.New(d.Stderr, "ledger_sync: ", log.LstdFlags)))
	}
	m, err := ledger.New(ctx, l, cfg.Table, opts...)
	if err != nil {
		fmt.Fprintf(d.Stderr, "%v\n", err)
		return 1
	}

	res, err := m.SyncDir(ctx, cfg.Dir)
	if err != nil {
		fmt.Fprintf(d.Stderr, "sync failed after %d new rows: %v\n", res.Inserted, err)
		return 1
	}
	fmt.Fprintf(d.Stdout, "synced %d files: read=%d inserted=%d table=%s total=%d\n",
		res.Files, res.Read, res.Inserted, m.Table(), res.Total)
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("ledger_sync", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Dir, "dir", recordstore.DefaultDir, "directory of per-domain distractor files")
	fs.StringVar(&cfg.Kind, "kind", "sqlite", "ledger backend: sqlite, postgres or mssql")
	fs.StringVar(&cfg.DSN, "dsn", "", "ledger DSN (default from LEDGER_DSN or LEDGER_DSN_* components)")
	fs.StringVar(&cfg.Table, "table", storage.DefaultRecordTable, "ledger table name")
	fs.IntVar(&cfg.BatchSize, "batch", ledger.DefaultBatchSize, "rows per insert statement")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if cfg.BatchSize <= 0 {
		return runConfig{}, errors.New("-batch must be > 0")
	}
	return cfg, nil
}
