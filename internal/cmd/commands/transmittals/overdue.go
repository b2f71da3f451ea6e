package transmittals

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/doctype"
)

type OverdueCommand struct {
	*base.Command

	flagConfig string
}

func (c *OverdueCommand) Synopsis() string {
	return "List outgoing transmittals waiting for an acknowledgement"
}

func (c *OverdueCommand) Help() string {
	return `Usage: phase transmittals overdue [options]

  This command lists the outgoing transmittals whose acknowledgement of
  receipt is past due. It exits with status 2 when any is found.` +
		c.Flags().Help()
}

func (c *OverdueCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("transmittals overdue", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	return f
}

func (c *OverdueCommand) Run(args []string) int {
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

	overdue, err := s.Transmittals.ListOverdue(ctx)
	if err != nil {
		ui.Error(fmt.Sprintf("error listing overdue transmittals: %v", err))
		return 1
	}
	if len(overdue) == 0 {
		ui.Info("No overdue transmittals")
		return 0
	}

	for _, t := range overdue {
		ui.Output(fmt.Sprintf("%s\t%s\t%s", t.TransmittalKey, t.TransmittalDate.Format(doctype.DateLayout), t.Recipient))
	}
	ui.Warn(fmt.Sprintf("%d transmittal(s) overdue", len(overdue)))
	return 2
}
