package base

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/internal/server"
)

// LoadConfig loads the configuration file and applies its log level.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	c.Log.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	return cfg, nil
}

// Server loads the configuration file and assembles the services.
func (c *Command) Server(ctx context.Context, path string) (*server.Server, error) {
	cfg, err := c.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return c.NewServer(ctx, cfg)
}

// NewServer assembles the services of cfg.
func (c *Command) NewServer(ctx context.Context, cfg *config.Config) (*server.Server, error) {
	s, err := server.New(ctx, cfg, c.Log, server.Options{})
	if err != nil {
		return nil, fmt.Errorf("error initializing services: %w", err)
	}
	return s, nil
}
