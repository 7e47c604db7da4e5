package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/statebridge/cmd/statebridge/commands"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("statebridge"),
		kong.Description("Replicate state objects between one controller and its peers"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := commands.NewGlobal(os.Stdout)
	if err := parser.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
