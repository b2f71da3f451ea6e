package events

import (
	"flag"
	"fmt"
	"time"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/internal/db"
	"github.com/phase-edms/phase/pkg/models"
)

type CleanupCommand struct {
	*base.Command

	flagConfig        string
	flagRetentionDays int
}

func (c *CleanupCommand) Synopsis() string {
	return "Delete published outbox events past their retention"
}

func (c *CleanupCommand) Help() string {
	return `Usage: phase events cleanup [options]

  This command deletes published outbox events older than the retention
  period and prints the outbox counts per status.` +
		c.Flags().Help()
}

func (c *CleanupCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("events cleanup", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.IntVar(&c.flagRetentionDays, "retention-days", 0,
		"Days published events are kept. Overrides events.retention_days.")

	return f
}

func (c *CleanupCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	days := cfg.Events.RetentionDays
	if c.flagRetentionDays > 0 {
		days = c.flagRetentionDays
	}

	database, err := db.NewDB(cfg, c.Log)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	deleted, err := models.DeleteOldPublishedEntries(database, time.Duration(days)*24*time.Hour)
	if err != nil {
		ui.Error(fmt.Sprintf("error deleting published events: %v", err))
		return 1
	}
	ui.Info(fmt.Sprintf("%d published event(s) deleted", deleted))

	for _, status := range []string{models.OutboxStatusPending, models.OutboxStatusPublished, models.OutboxStatusFailed} {
		n, err := models.CountOutboxByStatus(database, status)
		if err != nil {
			ui.Error(fmt.Sprintf("error counting %s events: %v", status, err))
			return 1
		}
		ui.Info(fmt.Sprintf("%-10s %d", status, n))
	}
	return 0
}
