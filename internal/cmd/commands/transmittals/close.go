package transmittals

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/models"
)

// CloseCommand accepts or rejects an incoming transmittal.
type CloseCommand struct {
	*base.Command

	// Reject selects the rejection instead of the acceptance.
	Reject bool

	flagConfig string
	flagKey    string
	flagReason string
}

func (c *CloseCommand) name() string {
	if c.Reject {
		return "reject"
	}
	return "accept"
}

func (c *CloseCommand) Synopsis() string {
	if c.Reject {
		return "Reject an incoming transmittal"
	}
	return "Accept an incoming transmittal"
}

func (c *CloseCommand) Help() string {
	return fmt.Sprintf(`Usage: phase transmittals %s [options]

  This command closes an incoming transmittal and moves its directory out
  of the "to be checked" area.`, c.name()) +
		c.Flags().Help()
}

func (c *CloseCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("transmittals "+c.name(), flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagKey, "key", "", "(Required) Transmittal key")
	if c.Reject {
		f.StringVar(&c.flagReason, "reason", "", "Reason of the rejection")
	}

	return f
}

func (c *CloseCommand) Run(args []string) int {
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

	trs, err := lookup(ctx, s, c.flagKey)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	var closed *models.Transmittal
	if c.Reject {
		closed, err = s.Transmittals.Reject(ctx, trs.ID, c.flagReason)
	} else {
		closed, err = s.Transmittals.Accept(ctx, trs.ID)
	}
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	ui.Info(fmt.Sprintf("%s %s", closed.TransmittalKey, closed.Status))
	return 0
}
