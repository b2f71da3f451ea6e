package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/internal/cmd/commands/compress"
	"github.com/phase-edms/phase/internal/cmd/commands/events"
	"github.com/phase-edms/phase/internal/cmd/commands/exports"
	"github.com/phase-edms/phase/internal/cmd/commands/notifications"
	"github.com/phase-edms/phase/internal/cmd/commands/reminders"
	"github.com/phase-edms/phase/internal/cmd/commands/search"
	"github.com/phase-edms/phase/internal/cmd/commands/transmittals"
	"github.com/phase-edms/phase/internal/cmd/commands/version"
)

// Commands is the mapping of all available phase commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"compress": func() (cli.Command, error) {
			return &compress.Command{Command: b}, nil
		},
		"events": func() (cli.Command, error) {
			return &events.Command{Command: b}, nil
		},
		"events cleanup": func() (cli.Command, error) {
			return &events.CleanupCommand{Command: b}, nil
		},
		"events relay": func() (cli.Command, error) {
			return &events.RelayCommand{Command: b}, nil
		},
		"exports": func() (cli.Command, error) {
			return &exports.Command{Command: b}, nil
		},
		"exports create": func() (cli.Command, error) {
			return &exports.CreateCommand{Command: b}, nil
		},
		"exports process": func() (cli.Command, error) {
			return &exports.ProcessCommand{Command: b}, nil
		},
		"notifications": func() (cli.Command, error) {
			return &notifications.Command{Command: b}, nil
		},
		"notifications dlq": func() (cli.Command, error) {
			return &notifications.DLQCommand{Command: b}, nil
		},
		"search": func() (cli.Command, error) {
			return &search.Command{Command: b}, nil
		},
		"search query": func() (cli.Command, error) {
			return &search.QueryCommand{Command: b}, nil
		},
		"search reindex": func() (cli.Command, error) {
			return &search.ReindexCommand{Command: b}, nil
		},
		"send-review-reminders": func() (cli.Command, error) {
			return &reminders.Command{Command: b}, nil
		},
		"transmittals": func() (cli.Command, error) {
			return &transmittals.Command{Command: b}, nil
		},
		"transmittals accept": func() (cli.Command, error) {
			return &transmittals.CloseCommand{Command: b}, nil
		},
		"transmittals ack": func() (cli.Command, error) {
			return &transmittals.AckCommand{Command: b}, nil
		},
		"transmittals overdue": func() (cli.Command, error) {
			return &transmittals.OverdueCommand{Command: b}, nil
		},
		"transmittals process": func() (cli.Command, error) {
			return &transmittals.ProcessCommand{Command: b}, nil
		},
		"transmittals reject": func() (cli.Command, error) {
			return &transmittals.CloseCommand{Command: b, Reject: true}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
