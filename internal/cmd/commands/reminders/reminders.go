package reminders

import (
	"context"
	"flag"
	"fmt"

	"github.com/phase-edms/phase/internal/cmd/base"
)

type Command struct {
	*base.Command

	flagConfig     string
	flagWithinDays int
}

func (c *Command) Synopsis() string {
	return "Send reminders for open reviews"
}

func (c *Command) Help() string {
	return `Usage: phase send-review-reminders [options]

  This command sends one reminder per revision under review that still has
  open reviews, to the participants of the active review step.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("send-review-reminders", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.IntVar(
		&c.flagWithinDays, "within-days", -1,
		"Only remind reviews due within that many days. Overrides reviews.remind_within_days.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx := context.Background()
	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	if c.flagWithinDays >= 0 {
		cfg.Reviews.RemindWithinDays = c.flagWithinDays
	}

	s, err := c.NewServer(ctx, cfg)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	sent, err := s.Reminder.Run(ctx)
	ui.Info(fmt.Sprintf("%d review reminder(s) sent", sent))
	if err != nil {
		ui.Error(fmt.Sprintf("some reminders could not be sent: %v", err))
		return 1
	}
	return 0
}
