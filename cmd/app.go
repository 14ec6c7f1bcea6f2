// Package cmd implements the ukcgt command line.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/config"
	"github.com/etnz/cgt/date"
	"github.com/etnz/cgt/fx"
	"github.com/etnz/cgt/fx/ecb"
	"github.com/etnz/cgt/fx/hmrc"
	"github.com/etnz/cgt/logger"
	"github.com/etnz/cgt/ratedb"
	"github.com/etnz/cgt/session"
	"github.com/etnz/cgt/webcache"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	transactionsFile = flag.String("transactions", "transactions.jsonl", "Path to the canonical transactions file (JSONL format)")
	strategyName     = flag.String("strategy", "", "Exchange rate strategy: monthly, yearly or daily. Defaults to CGT_STRATEGY.")
	envFile          = flag.String("env", "", "Path to a .env file. Defaults to ./.env when present.")
	raw              = flag.Bool("raw", false, "Print markdown instead of rendering it for the terminal")
)

// stdout receives the reports.
var stdout io.Writer = os.Stdout

// Commands lists every ukcgt subcommand.
var Commands = []subcommands.Command{
	&reportCmd{},
	&disposalsCmd{},
	&poolsCmd{},
	&sa106Cmd{},
	&enrichCmd{},
	&ratesCmd{},
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands[:4] {
		c.Register(cmd, "reports")
	}
	for _, cmd := range Commands[4:] {
		c.Register(cmd, "exchange rates")
	}
}

// app wires the components a command needs.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	strategy fx.Strategy
	store    *ratedb.Store
	engine   *fx.Engine
}

func newApp() (*app, error) {
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg := config.Load(files...)
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	strategy := cfg.Strategy
	if *strategyName != "" {
		s, err := fx.ParseStrategy(*strategyName)
		if err != nil {
			return nil, err
		}
		strategy = s
	}

	store, err := ratedb.Open(cfg.DBPath, log)
	if err != nil {
		return nil, err
	}

	// Monthly and yearly rates never change once published, daily ones are
	// re-requested at most once a day.
	cacheDir := cfg.HTTPCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "ukcgt")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("http disk cache disabled")
		cfg.HTTPDiskCache = false
	}
	client := webcache.NewClient(webcache.Options{
		Timeout: cfg.HTTPTimeout,
		Cache:   cfg.HTTPDiskCache,
		Dir:     cacheDir,
		Period:  date.Daily,
		Log:     log,
	})
	official := hmrc.New(cfg.HMRCBaseURL, client, log)
	sources := fx.Sources{
		Monthly: official,
		Yearly:  official,
		Daily:   ecb.New(cfg.ECBBaseURL, client, log),
	}

	return &app{
		cfg:      cfg,
		log:      log,
		strategy: strategy,
		store:    store,
		engine:   fx.NewEngine(store, sources, fx.Options{Strategy: strategy, Concurrency: cfg.FetchConcurrency, Log: log}),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing rate database")
	}
}

// decodeTransactions reads the transactions file.
func decodeTransactions() ([]cgt.Transaction, error) {
	f, err := os.Open(*transactionsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cgt.DecodeTransactions(f)
}

// snapshot loads the transactions and computes their outcome.
func (a *app) snapshot(ctx context.Context) (session.Snapshot, error) {
	txs, err := decodeTransactions()
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("loading %s: %w", *transactionsFile, err)
	}
	s := session.New(a.engine, a.log)
	s.Load(txs)
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return session.Snapshot{}, err
	}
	for _, f := range snap.Failures {
		a.log.Warn().Err(f.Err).Str("transaction", f.Transaction.ID).Msg("no exchange rate")
	}
	return snap, nil
}

// run opens the app, executes f and reports its error.
func run(ctx context.Context, f func(context.Context, *app) error) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := f(ctx, a); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		a.log.Error().Err(err).Msg("command failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type usageError struct{ error }

// parseYear parses an optional tax year flag.
func parseYear(s string) (y date.TaxYear, ok bool, err error) {
	if s == "" {
		return 0, false, nil
	}
	y, err = date.ParseTaxYear(s)
	if err != nil {
		return 0, false, usageError{err}
	}
	return y, true, nil
}
