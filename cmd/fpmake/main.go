package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fpmake/cmd/fpmake/commands"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}

	ctx := kong.Parse(cli,
		kong.Name("fpmake"),
		kong.Description("Incremental C/C++ builds driven by preprocessed-output fingerprints."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	if err := ctx.Run(global, cli); err != nil {
		logger := global.Logger
		if logger == nil {
			logger = slog.Default()
		}
		errors.NewCLIErrorAdapter(cli.Verbose, logger).HandleError(err)
	}
}
