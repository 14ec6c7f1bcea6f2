package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/renderer"
	"github.com/google/subcommands"
)

// reportCmd holds the flags for the 'report' subcommand.
type reportCmd struct {
	year string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "capital gains and dividend income per tax year" }
func (*reportCmd) Usage() string {
	return `ukcgt report [-year <YYYY/YY>]

  Converts the transactions to GBP, matches disposals under the HMRC share
  identification rules and summarises each UK tax year.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.year, "year", "", "Only report this tax year, e.g. 2024/25")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		y, filter, err := parseYear(c.year)
		if err != nil {
			return err
		}
		snap, err := a.snapshot(ctx)
		if err != nil {
			return err
		}
		if filter {
			s, ok := snap.TaxYear(y)
			snap.TaxYears = nil
			if ok {
				snap.TaxYears = []cgt.TaxYearSummary{s}
			}
		}
		printMarkdown(renderer.Report(snap))
		return nil
	})
}

// sa106Cmd holds the flags for the 'sa106' subcommand.
type sa106Cmd struct {
	year string
}

func (*sa106Cmd) Name() string     { return "sa106" }
func (*sa106Cmd) Synopsis() string { return "foreign dividend figures for the SA106 supplement" }
func (*sa106Cmd) Usage() string {
	return `ukcgt sa106 [-year <YYYY/YY>]

  Prints the gross foreign dividends, the foreign tax withheld and the net
  amount received, in GBP, for each tax year.
`
}

func (c *sa106Cmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.year, "year", "", "Only report this tax year, e.g. 2024/25")
}

func (c *sa106Cmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		y, filter, err := parseYear(c.year)
		if err != nil {
			return err
		}
		snap, err := a.snapshot(ctx)
		if err != nil {
			return err
		}
		years := snap.TaxYears
		if filter {
			s, ok := snap.TaxYear(y)
			if !ok {
				return fmt.Errorf("no income in %s", y)
			}
			years = []cgt.TaxYearSummary{s}
		}
		printMarkdown(renderer.SA106(years))
		return nil
	})
}
