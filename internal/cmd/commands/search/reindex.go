package search

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type ReindexCommand struct {
	*base.Command

	flagConfig string
}

func (c *ReindexCommand) Synopsis() string {
	return "Rebuild the document index from the database"
}

func (c *ReindexCommand) Help() string {
	return `Usage: phase search reindex [options]

  This command indexes every indexable document of the database.` +
		c.Flags().Help()
}

func (c *ReindexCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("search reindex", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	return f
}

func (c *ReindexCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx := context.Background()
	s, err := c.Server(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	n, err := s.Index.Reindex(ctx, s.DB)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	ui.Info(fmt.Sprintf("%d document(s) indexed", n))
	return 0
}
