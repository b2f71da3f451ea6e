package exports

import (
	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Create and process document exports"
}

func (c *Command) Help() string {
	return `Usage: phase exports <subcommand> [options] [args]

  This command groups subcommands for document exports.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
