package exports

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/exports"
	"github.com/phase-edms/phase/pkg/models"
)

type CreateCommand struct {
	*base.Command

	flagConfig     string
	flagOwner      string
	flagCategory   string
	flagFormat     string
	flagRevisions  string
	flagFileFormat string
	flagStart      bool
}

func (c *CreateCommand) Synopsis() string {
	return "Create an export of the documents of a category"
}

func (c *CreateCommand) Help() string {
	return `Usage: phase exports create [options] [document keys...]

  This command creates an export job. Started jobs are produced by
  "phase exports process".` +
		c.Flags().Help()
}

func (c *CreateCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("exports create", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagOwner, "owner", "", "(Required) User requesting the export")
	f.StringVar(&c.flagCategory, "category", "", "(Required) Category code")
	f.StringVar(&c.flagFormat, "format", "", "Files to include: native, pdf or both")
	f.StringVar(&c.flagRevisions, "revisions", "", "Revisions to include: latest or all")
	f.StringVar(&c.flagFileFormat, "file-format", "", "Export file: zip or csv")
	f.BoolVar(&c.flagStart, "start", true, "Start the export right away")

	return f
}

func (c *CreateCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagCategory == "" {
		ui.Error("category flag is required")
		return 1
	}

	ctx := context.Background()
	s, err := c.Server(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	cat, err := models.GetCategoryByCode(s.DB.WithContext(ctx), c.flagCategory)
	if err != nil {
		ui.Error(fmt.Sprintf("error loading category %s: %v", c.flagCategory, err))
		return 1
	}

	e, err := s.Exports.Create(ctx, exports.CreateRequest{
		Owner:        c.flagOwner,
		CategoryID:   cat.ID,
		Format:       exports.Format(c.flagFormat),
		Revisions:    exports.Revisions(c.flagRevisions),
		FileFormat:   c.flagFileFormat,
		DocumentKeys: flags.Args(),
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error creating export: %v", err))
		return 1
	}

	if c.flagStart {
		if err := s.Exports.Start(ctx, e.ID); err != nil {
			ui.Error(fmt.Sprintf("error starting export: %v", err))
			return 1
		}
	}

	ui.Info(fmt.Sprintf("Export %s created: %s", e.ID, s.Exports.Path(e)))
	return 0
}
