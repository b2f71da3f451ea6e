package events

import (
	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Publish and maintain the document event outbox"
}

func (c *Command) Help() string {
	return `Usage: phase events <subcommand> [options] [args]

  This command groups subcommands for the document event outbox.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
