package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/date"
	"github.com/google/subcommands"
)

// ratesCmd holds the flags for the 'rates' subcommand.
type ratesCmd struct {
	from       string
	to         string
	currencies string
	list       bool
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "download exchange rates into the local cache" }
func (*ratesCmd) Usage() string {
	return `ukcgt rates -from <date> [-to <date>] -c <USD,EUR,...> [-list]

  Fetches the rates of the active strategy for a date range and stores them
  in the rate database, so that later reports work offline.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "First date of the range (YYYY-MM-DD)")
	f.StringVar(&c.to, "to", date.Today().String(), "Last date of the range (YYYY-MM-DD)")
	f.StringVar(&c.currencies, "c", "USD,EUR", "Comma separated currency codes")
	f.BoolVar(&c.list, "list", false, "Print the cached rates of the strategy")
}

// currencyList parses a comma separated list of currency codes.
func currencyList(s string) ([]string, error) {
	var out, invalid []string
	for _, c := range strings.Split(s, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if err := cgt.ValidateCurrency(c); err != nil {
			invalid = append(invalid, c)
			continue
		}
		out = append(out, c)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("unknown currencies %s", strings.Join(invalid, ", "))
	}
	if len(out) == 0 {
		return nil, errors.New("no currency")
	}
	return out, nil
}

func (c *ratesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		if c.list {
			entries, err := a.store.Entries(ctx, a.strategy)
			if err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# Cached %s rates\n\n", a.strategy)
			fmt.Fprintln(&b, "| Period | Currency | Units per £1 | Source | Fetched |")
			fmt.Fprintln(&b, "|:---|:---|---:|:---|:---|")
			for _, e := range entries {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", e.DateKey, e.Currency, e.Rate, e.Source, e.FetchedAt.Format("2006-01-02 15:04"))
			}
			printMarkdown(b.String())
			return nil
		}

		from, err := date.Parse(c.from)
		if err != nil {
			return usageError{fmt.Errorf("invalid -from: %w", err)}
		}
		to, err := date.Parse(c.to)
		if err != nil {
			return usageError{fmt.Errorf("invalid -to: %w", err)}
		}
		if to.Before(from) {
			return usageError{fmt.Errorf("-to %s is before -from %s", to, from)}
		}
		currencies, err := currencyList(c.currencies)
		if err != nil {
			return usageError{err}
		}

		if err := a.engine.Provider(a.strategy).Prefetch(ctx, from, to, currencies); err != nil {
			return err
		}
		a.log.Info().Stringer("strategy", a.strategy).Stringer("from", from).Stringer("to", to).Strs("currencies", currencies).Msg("rates cached")
		return nil
	})
}
