package search

import (
	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Query and rebuild the document index"
}

func (c *Command) Help() string {
	return `Usage: phase search <subcommand> [options] [args]

  This command groups subcommands for the document search index.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
