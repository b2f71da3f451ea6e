package search

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/search"
)

type QueryCommand struct {
	*base.Command

	flagConfig       string
	flagDocumentType string
	flagLimit        int
}

func (c *QueryCommand) Synopsis() string {
	return "Search documents by title or key"
}

func (c *QueryCommand) Help() string {
	return `Usage: phase search query [options] <text>

  This command prints the documents whose title matches the text, or whose
  key equals or starts with it.` +
		c.Flags().Help()
}

func (c *QueryCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("search query", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagDocumentType, "type", "", "Only documents of this type")
	f.IntVar(&c.flagLimit, "limit", 20, "Maximum number of results")

	return f
}

func (c *QueryCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
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

	q := search.Query{
		Text:    strings.Join(flags.Args(), " "),
		PerPage: c.flagLimit,
	}
	if c.flagDocumentType != "" {
		q.Filters = map[string][]string{"documentType": {c.flagDocumentType}}
	}

	res, err := s.Index.Query(ctx, q)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	for _, hit := range res.Hits {
		ui.Output(fmt.Sprintf("%s\t%d\t%s", hit.DocumentKey, hit.Revision, hit.Title))
	}
	ui.Info(fmt.Sprintf("%d of %d document(s) (%s)", len(res.Hits), res.TotalHits, res.QueryTime))
	return 0
}
