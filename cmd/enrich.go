package cmd

import (
	"context"
	"flag"

	"github.com/etnz/cgt"
	"github.com/google/subcommands"
)

// enrichCmd holds the flags for the 'enrich' subcommand.
type enrichCmd struct{}

func (*enrichCmd) Name() string     { return "enrich" }
func (*enrichCmd) Synopsis() string { return "print transactions with their GBP amounts" }
func (*enrichCmd) Usage() string {
	return `ukcgt enrich

  Writes the transactions converted to GBP as JSONL on the standard output.
  Transactions without an exchange rate are reported on the standard error.
`
}

func (*enrichCmd) SetFlags(*flag.FlagSet) {}

func (*enrichCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		txs, err := decodeTransactions()
		if err != nil {
			return err
		}
		res, err := a.engine.Enrich(ctx, txs, a.strategy)
		if err != nil {
			return err
		}
		for _, f := range res.Failures {
			a.log.Warn().Err(f.Err).Str("transaction", f.Transaction.ID).Msg("no exchange rate")
		}
		return cgt.EncodeEnriched(stdout, res.Transactions)
	})
}
