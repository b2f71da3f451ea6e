package events

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/internal/db"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/kafka"
)

type RelayCommand struct {
	*base.Command

	flagConfig string
	flagOnce   bool
}

func (c *RelayCommand) Synopsis() string {
	return "Publish pending outbox events to the event topic"
}

func (c *RelayCommand) Help() string {
	return `Usage: phase events relay [options]

  This command polls the event outbox and publishes pending events to the
  document event topic until interrupted. With -once it publishes one batch
  and exits.` +
		c.Flags().Help()
}

func (c *RelayCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("events relay", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.BoolVar(&c.flagOnce, "once", false, "Publish one batch and exit")

	return f
}

func (c *RelayCommand) Run(args []string) int {
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
	brokers := kafka.GetEventBrokers(cfg)
	if len(brokers) == 0 {
		ui.Error("no event brokers configured (events.brokers or PHASE_EVENT_BROKERS)")
		return 1
	}

	database, err := db.NewDB(cfg, c.Log)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	relay, err := events.NewRelay(events.RelayConfig{
		DB:           database,
		Brokers:      brokers,
		Topic:        kafka.GetEventTopic(cfg),
		PollInterval: cfg.EventPollInterval(),
		BatchSize:    cfg.Events.BatchSize,
		MaxAttempts:  cfg.Events.MaxAttempts,
		Logger:       c.Log,
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error creating relay: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.flagOnce {
		defer relay.Stop()
		n, err := relay.ProcessBatch(ctx)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		ui.Info(fmt.Sprintf("%d event(s) published", n))
		return 0
	}

	err = relay.Start(ctx)
	relay.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		ui.Error(fmt.Sprintf("relay failed: %v", err))
		return 1
	}
	return 0
}
