package transmittals

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type ProcessCommand struct {
	*base.Command

	flagConfig string
	flagKey    string
}

func (c *ProcessCommand) Synopsis() string {
	return "Resume the packaging of an outgoing transmittal"
}

func (c *ProcessCommand) Help() string {
	return `Usage: phase transmittals process [options]

  This command copies the files of an outgoing transmittal that is new or
  whose packaging stopped half way, then marks it done.` +
		c.Flags().Help()
}

func (c *ProcessCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("transmittals process", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.StringVar(&c.flagKey, "key", "", "(Required) Transmittal key")

	return f
}

func (c *ProcessCommand) Run(args []string) int {
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
	trs, err = s.Transmittals.Process(ctx, trs.ID)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	ui.Info(fmt.Sprintf("%s %s", trs.TransmittalKey, trs.Status))
	return 0
}
