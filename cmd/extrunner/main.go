package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/extrunner/cmd/extrunner/commands"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Must(cli,
		kong.Name("extrunner"),
		kong.Description("Incremental, sandboxed extension build runner"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		if _, ok := errors.AsClassified(err); ok {
			errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
		}
		parser.FatalIfErrorf(err)
	}

	err = kctx.Run(&commands.Global{Logger: slog.Default()})
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
