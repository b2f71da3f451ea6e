package transmittals

import (
	"context"
	"fmt"

	"github.com/mitchellh/cli"

	"github.com/phase-edms/phase/internal/cmd/base"
	"github.com/phase-edms/phase/internal/server"
	"github.com/phase-edms/phase/pkg/models"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Manage transmittals"
}

func (c *Command) Help() string {
	return `Usage: phase transmittals <subcommand> [options] [args]

  This command groups subcommands for incoming and outgoing transmittals.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// lookup resolves a transmittal key given on the command line.
func lookup(ctx context.Context, s *server.Server, key string) (*models.Transmittal, error) {
	if key == "" {
		return nil, fmt.Errorf("a transmittal key is required")
	}
	trs, err := models.GetTransmittalByKey(s.DB.WithContext(ctx), key)
	if err != nil {
		return nil, fmt.Errorf("error loading transmittal %s: %w", key, err)
	}
	return trs, nil
}
