package exports

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/exports"
)

type ProcessCommand struct {
	*base.Command

	flagConfig string
	flagOnce   bool
}

func (c *ProcessCommand) Synopsis() string {
	return "Produce the files of started exports"
}

func (c *ProcessCommand) Help() string {
	return `Usage: phase exports process [options]

  This command runs the export worker. It polls started exports until
  interrupted, or processes the waiting ones and exits with -once.` +
		c.Flags().Help()
}

func (c *ProcessCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("exports process", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.BoolVar(&c.flagOnce, "once", false, "Process the waiting exports and exit")

	return f
}

func (c *ProcessCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := c.Server(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	worker := exports.NewWorker(s.Exports, s.Config.ExportPollInterval())
	if c.flagOnce {
		n, err := worker.Drain(ctx)
		ui.Info(fmt.Sprintf("%d export(s) processed", n))
		if err != nil {
			ui.Error(fmt.Sprintf("some exports failed: %v", err))
			return 1
		}
		return 0
	}

	if err := worker.Run(ctx); err != nil {
		ui.Error(fmt.Sprintf("export worker failed: %v", err))
		return 1
	}
	return 0
}
