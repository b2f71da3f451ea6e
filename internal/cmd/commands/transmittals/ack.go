package transmittals

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/doctype"
)

type AckCommand struct {
	*base.Command

	flagConfig string
	flagKey    string
	flagDate   string
}

func (c *AckCommand) Synopsis() string {
	return "Record the acknowledgement of receipt of a transmittal"
}

func (c *AckCommand) Help() string {
	return `Usage: phase transmittals ack [options]

  This command records the date the recipient acknowledged receipt of an
  outgoing transmittal.` +
		c.Flags().Help()
}

func (c *AckCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("transmittals ack", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagKey, "key", "", "(Required) Transmittal key")
	f.StringVar(&c.flagDate, "date", "", "Acknowledgement date, today when empty")

	return f
}

func (c *AckCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	var date time.Time
	if c.flagDate != "" {
		var err error
		if date, err = dateparse.ParseIn(c.flagDate, time.UTC); err != nil {
			ui.Error(fmt.Sprintf("invalid date %q: %v", c.flagDate, err))
			return 1
		}
	}

	ctx := context.Background()
	s, err := c.Server(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	trs, err := lookup(ctx, s, c.flagKey)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	trs, err = s.Transmittals.Acknowledge(ctx, trs.ID, date)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	ui.Info(fmt.Sprintf("%s acknowledged on %s", trs.TransmittalKey, trs.AckOfReceiptDate.Format(doctype.DateLayout)))
	return 0
}
