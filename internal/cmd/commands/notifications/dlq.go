package notifications

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/pkg/kafka"
	"github.com/phase-edms/phase/pkg/notifications"
)

type DLQCommand struct {
	*base.Command

	flagConfig  string
	flagLimit   int
	flagTimeout time.Duration
}

func (c *DLQCommand) Synopsis() string {
	return "List notifications that could not be delivered"
}

func (c *DLQCommand) Help() string {
	return `Usage: phase notifications dlq [options]

  This command reads the dead letter topic and prints one line per
  notification that exhausted its retries or failed permanently.` +
		c.Flags().Help()
}

func (c *DLQCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("notifications dlq", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "Path to phase config file")
	f.IntVar(&c.flagLimit, "limit", 50, "Maximum number of messages to print")
	f.DurationVar(&c.flagTimeout, "timeout", 5*time.Second, "How long to wait for messages")

	return f
}

func (c *DLQCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagLimit < 1 {
		ui.Error("limit must be at least 1")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	brokers := kafka.GetNotificationBrokers(cfg)
	if len(brokers) == 0 {
		ui.Error("no notification brokers configured")
		return 1
	}

	monitor, err := notifications.NewDLQMonitor(brokers, kafka.GetDLQTopic(cfg))
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.flagTimeout)
	defer cancel()

	msgs, err := monitor.GetDLQMessages(ctx, c.flagLimit)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	for _, m := range msgs {
		key := m.DocumentKey
		if key == "" {
			key = m.TransmittalKey
		}
		ui.Output(fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
			m.DLQTimestamp.Format(time.RFC3339),
			m.MessageID,
			m.NotificationType,
			key,
			strings.Join(m.FailedBackends, ","),
		))
		ui.Output("  " + m.FailureReason)
	}
	ui.Info(fmt.Sprintf("%d message(s) in the dead letter queue", len(msgs)))
	return 0
}
