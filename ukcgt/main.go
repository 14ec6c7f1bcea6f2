// Command ukcgt computes UK capital gains tax figures from a canonical
// transactions file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/etnz/cgt/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// completion describes the command line for shell completion.
func completion() *complete.Command {
	global := map[string]complete.Predictor{
		"transactions": predict.Files("*.jsonl"),
		"strategy":     predict.Set{"monthly", "yearly", "daily"},
		"env":          predict.Files("*"),
		"raw":          predict.Nothing,
	}
	year := map[string]complete.Predictor{"year": predict.Something}
	return &complete.Command{
		Flags: global,
		Sub: map[string]*complete.Command{
			"report":    {Flags: year},
			"disposals": {Flags: year},
			"sa106":     {Flags: year},
			"pools":     {},
			"enrich":    {},
			"rates": {Flags: map[string]complete.Predictor{
				"from": predict.Something,
				"to":   predict.Something,
				"c":    predict.Something,
				"list": predict.Nothing,
			}},
			"help":     {},
			"flags":    {},
			"commands": {},
		},
	}
}

func main() {
	completion().Complete("ukcgt")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
