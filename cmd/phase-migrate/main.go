package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/internal/migrate"
	"github.com/phase-edms/phase/pkg/database"
)

func main() {
	configFile := flag.String("config", "", "Path to HCL configuration file")
	driver := flag.String("driver", "", "Database driver (postgres|sqlite), overrides the config file")
	dsn := flag.String("dsn", "", "Database connection string, overrides the config file")
	down := flag.Int("down", 0, "Roll back this many migrations instead of migrating up")
	showVersion := flag.Bool("version", false, "Print the current migration version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Applies the phase database schema migrations.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  %s -config=phase.hcl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -driver=sqlite -dsn=phase.db\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config=phase.hcl -down=1\n", os.Args[0])
	}
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{Name: "phase-migrate"})

	dbCfg, err := databaseConfig(*configFile, *driver, *dsn)
	if err != nil {
		logger.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}

	if err := run(logger, dbCfg, *down, *showVersion); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// databaseConfig merges the config file with the command line overrides.
func databaseConfig(path, driver, dsn string) (database.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return database.Config{}, err
	}
	dbCfg := cfg.DatabaseConfig()
	if driver != "" {
		dbCfg.Driver = driver
	}
	if dsn != "" {
		dbCfg.DSN = dsn
	}
	if dbCfg.Driver == database.DriverSQLite && dbCfg.DSN == "" {
		return database.Config{}, fmt.Errorf("sqlite driver requires a DSN")
	}
	return dbCfg, nil
}

func run(logger hclog.Logger, cfg database.Config, down int, showVersion bool) error {
	sqlDriver, err := migrate.SQLDriverName(cfg.Driver)
	if err != nil {
		return err
	}
	dsn := cfg.DSN
	if cfg.Driver == database.DriverPostgres {
		dsn = cfg.PostgresDSN()
	}

	logger.Info("connecting to database", "driver", cfg.Driver)
	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	switch {
	case showVersion:
	case down > 0:
		logger.Info("rolling back migrations", "steps", down)
		if err := migrate.Rollback(sqlDB, cfg.Driver, down); err != nil {
			return err
		}
	default:
		logger.Info("running migrations")
		if err := migrate.RunMigrations(sqlDB, cfg.Driver); err != nil {
			return err
		}
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, cfg.Driver)
	if err != nil {
		logger.Warn("unable to read migration version", "error", err)
		return nil
	}
	logger.Info("database schema", "version", version, "dirty", dirty)
	return nil
}
