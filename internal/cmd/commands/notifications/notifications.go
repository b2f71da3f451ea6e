package notifications

import (
	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Inspect notification delivery"
}

func (c *Command) Help() string {
	return `Usage: phase notifications <subcommand> [options] [args]

  This command groups subcommands for the notification topics.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
