package compress

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/exports"
	"github.com/phase-edms/phase/pkg/models"
)

type Command struct {
	*base.Command

	flagConfig    string
	flagCategory  string
	flagFormat    string
	flagRevisions string
	flagOut       string
}

func (c *Command) Synopsis() string {
	return "Compress the files of documents into a zip archive"
}

func (c *Command) Help() string {
	return `Usage: phase compress [options] [document keys...]

  This command writes the revision files of the documents of a category
  into a zip archive. Without document keys, every document of the
  category is compressed.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("compress", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagCategory, "category", "", "(Required) Category code, for example FAC09001-FWF-000")
	f.StringVar(&c.flagFormat, "format", string(exports.FormatBoth), "Files to include: native, pdf or both")
	f.StringVar(&c.flagRevisions, "revisions", string(exports.RevisionsLatest), "Revisions to include: latest or all")
	f.StringVar(&c.flagOut, "out", "documents.zip", "Path of the archive to write")

	return f
}

func (c *Command) Run(args []string) int {
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

	opts := exports.Options{
		Format:    exports.Format(c.flagFormat),
		Revisions: exports.Revisions(c.flagRevisions),
	}
	if err := opts.Validate(); err != nil {
		ui.Error(err.Error())
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
	docs, err := models.GetDocumentsByCategory(s.DB.WithContext(ctx), cat.ID)
	if err != nil {
		ui.Error(fmt.Sprintf("error loading documents: %v", err))
		return 1
	}
	if keys := flags.Args(); len(keys) > 0 {
		docs = slices.DeleteFunc(docs, func(d models.Document) bool {
			return !slices.Contains(keys, d.DocumentKey)
		})
	}

	out, err := os.Create(c.flagOut)
	if err != nil {
		ui.Error(fmt.Sprintf("error creating %s: %v", c.flagOut, err))
		return 1
	}

	n, err := s.Exports.Compressor().CompressDocuments(ctx, out, docs, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(c.flagOut)
		ui.Error(fmt.Sprintf("error compressing documents: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("%d file(s) from %d document(s) written to %s", n, len(docs), c.flagOut))
	return 0
}
