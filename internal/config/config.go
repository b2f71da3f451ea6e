// Package config loads the HCL configuration shared by the phase binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/phase-edms/phase/pkg/database"
	"github.com/phase-edms/phase/pkg/notifications/backends"
	"github.com/phase-edms/phase/pkg/storage"
)

// Environment variables overriding the configuration file.
const (
	EnvDatabaseDSN = "PHASE_DATABASE_DSN"
	EnvStorageRoot = "PHASE_STORAGE_ROOT"
)

// Config is the root of the configuration file.
type Config struct {
	Database      *Database      `hcl:"database,block"`
	Storage       *Storage       `hcl:"storage,block"`
	Events        *Events        `hcl:"events,block"`
	Notifications *Notifications `hcl:"notifications,block"`
	Reviews       *Reviews       `hcl:"reviews,block"`
	Transmittals  *Transmittals  `hcl:"transmittals,block"`
	Exports       *Exports       `hcl:"exports,block"`
	Search        *Search        `hcl:"search,block"`

	// ValueLists is a YAML file of choice lists replacing the built-in ones.
	ValueLists string `hcl:"value_lists,optional"`

	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `hcl:"log_level,optional"`
}

// Database configures the relational store.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	DSN      string `hcl:"dsn,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	MaxIdleConns int `hcl:"max_idle_conns,optional"`
	MaxOpenConns int `hcl:"max_open_conns,optional"`
}

// Storage configures where revision files, transmittal directories and
// export archives live. S3 takes precedence over Root.
type Storage struct {
	Root string            `hcl:"root,optional"`
	S3   *storage.S3Config `hcl:"s3,block"`
}

// Events configures the outbox relay.
type Events struct {
	Brokers             []string `hcl:"brokers,optional"`
	Topic               string   `hcl:"topic,optional"`
	PollIntervalSeconds int      `hcl:"poll_interval_seconds,optional"`
	BatchSize           int      `hcl:"batch_size,optional"`
	MaxAttempts         int      `hcl:"max_attempts,optional"`
	RetentionDays       int      `hcl:"retention_days,optional"`
}

// Notifications configures notification delivery. Without brokers,
// notifications are handed to the backends directly.
type Notifications struct {
	Backends      *backends.Config `hcl:"backends,block"`
	Brokers       []string         `hcl:"brokers,optional"`
	Topic         string           `hcl:"topic,optional"`
	DLQTopic      string           `hcl:"dlq_topic,optional"`
	ConsumerGroup string           `hcl:"consumer_group,optional"`
}

// Reviews configures the review reminders.
type Reviews struct {
	RemindWithinDays int `hcl:"remind_within_days,optional"`
}

// Transmittals configures transmittal processing.
type Transmittals struct {
	OutgoingDir string `hcl:"outgoing_dir,optional"`
	AckDueDays  int    `hcl:"ack_due_days,optional"`

	// Recipients maps a recipient company code to the addresses notified
	// of new outgoing transmittals.
	Recipients map[string][]string `hcl:"recipients,optional"`
}

// Exports configures the export worker.
type Exports struct {
	Dir                 string `hcl:"dir,optional"`
	PollIntervalSeconds int    `hcl:"poll_interval_seconds,optional"`
}

// Search configures the document index.
type Search struct {
	// IndexPath is the index directory. An empty path keeps the index in
	// memory.
	IndexPath string `hcl:"index_path,optional"`
}

// Load decodes the file at path, applies environment overrides and
// defaults, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		c.Database.DSN = dsn
	}
	if root := os.Getenv(EnvStorageRoot); root != "" {
		c.Storage.Root = root
	}
}

// SetDefaults allocates missing blocks and fills unset values.
func (c *Config) SetDefaults() {
	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = database.DriverPostgres
	}
	if c.Database.Driver == database.DriverPostgres {
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.DBName == "" {
			c.Database.DBName = "phase"
		}
	}

	if c.Storage == nil {
		c.Storage = &Storage{}
	}
	if c.Storage.S3 != nil {
		c.Storage.S3.SetDefaults()
	} else if c.Storage.Root == "" {
		c.Storage.Root = "media"
	}

	if c.Events == nil {
		c.Events = &Events{}
	}
	if c.Events.PollIntervalSeconds == 0 {
		c.Events.PollIntervalSeconds = 1
	}
	if c.Events.RetentionDays == 0 {
		c.Events.RetentionDays = 30
	}

	if c.Notifications == nil {
		c.Notifications = &Notifications{}
	}
	if c.Notifications.Backends == nil {
		c.Notifications.Backends = &backends.Config{
			Audit: &backends.AuditConfig{Enabled: true},
		}
	}

	if c.Reviews == nil {
		c.Reviews = &Reviews{}
	}
	if c.Transmittals == nil {
		c.Transmittals = &Transmittals{}
	}
	if c.Transmittals.OutgoingDir == "" {
		c.Transmittals.OutgoingDir = "outgoing"
	}
	if c.Transmittals.AckDueDays == 0 {
		c.Transmittals.AckDueDays = 7
	}

	if c.Exports == nil {
		c.Exports = &Exports{}
	}
	if c.Exports.Dir == "" {
		c.Exports.Dir = "exports"
	}
	if c.Exports.PollIntervalSeconds == 0 {
		c.Exports.PollIntervalSeconds = 5
	}

	if c.Search == nil {
		c.Search = &Search{}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var result error

	switch c.Database.Driver {
	case database.DriverPostgres:
	case database.DriverSQLite:
		if c.Database.DSN == "" {
			result = multierror.Append(result, errors.New("database: sqlite driver requires a dsn"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}

	if c.Storage.S3 != nil && c.Storage.S3.Bucket == "" {
		result = multierror.Append(result, errors.New("storage: s3 bucket is required"))
	}

	if c.Events.BatchSize < 0 {
		result = multierror.Append(result, errors.New("events: batch_size must not be negative"))
	}
	if c.Reviews.RemindWithinDays < 0 {
		result = multierror.Append(result, errors.New("reviews: remind_within_days must not be negative"))
	}
	if c.Transmittals.AckDueDays < 0 {
		result = multierror.Append(result, errors.New("transmittals: ack_due_days must not be negative"))
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}

	return result
}

// DatabaseConfig returns the connection settings of the database block.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		DBName:       c.Database.DBName,
		SSLMode:      c.Database.SSLMode,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// EventPollInterval returns the outbox polling interval.
func (c *Config) EventPollInterval() time.Duration {
	return time.Duration(c.Events.PollIntervalSeconds) * time.Second
}

// ExportPollInterval returns the export worker polling interval.
func (c *Config) ExportPollInterval() time.Duration {
	return time.Duration(c.Exports.PollIntervalSeconds) * time.Second
}
