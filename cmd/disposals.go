package cmd

import (
	"context"
	"flag"

	"github.com/etnz/cgt/renderer"
	"github.com/google/subcommands"
)

// disposalsCmd holds the flags for the 'disposals' subcommand.
type disposalsCmd struct {
	year string
}

func (*disposalsCmd) Name() string     { return "disposals" }
func (*disposalsCmd) Synopsis() string { return "each disposal with its same-day, 30-day and pool matches" }
func (*disposalsCmd) Usage() string {
	return `ukcgt disposals [-year <YYYY/YY>]

  Lists disposals with the quantity and cost matched by each rule, the
  allowable cost and the gain in GBP.
`
}

func (c *disposalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.year, "year", "", "Only list disposals of this tax year, e.g. 2024/25")
}

func (c *disposalsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
			printMarkdown(renderer.Disposals("Disposals "+y.String(), snap.DisposalsIn(y)))
			return nil
		}
		printMarkdown(renderer.Disposals("Disposals", snap.Disposals))
		return nil
	})
}

// poolsCmd holds the flags for the 'pools' subcommand.
type poolsCmd struct{}

func (*poolsCmd) Name() string     { return "pools" }
func (*poolsCmd) Synopsis() string { return "current Section 104 holdings" }
func (*poolsCmd) Usage() string {
	return `ukcgt pools

  Lists the quantity, pooled cost and average cost of every asset after all
  transactions.
`
}

func (*poolsCmd) SetFlags(*flag.FlagSet) {}

func (*poolsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		snap, err := a.snapshot(ctx)
		if err != nil {
			return err
		}
		printMarkdown(renderer.Pools(snap.Pools))
		return nil
	})
}
