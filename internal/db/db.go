package db

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/pkg/database"
	"github.com/phase-edms/phase/pkg/models"
)

// NewDB returns a database connection for the database block of cfg.
//
// PostgreSQL databases are expected to be migrated by phase-migrate. SQLite
// databases are auto-migrated, which keeps local and demo setups to a
// single binary.
func NewDB(cfg *config.Config, logger hclog.Logger) (*gorm.DB, error) {
	dbConfig := cfg.DatabaseConfig()

	db, err := database.Connect(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if dbConfig.Driver == database.DriverSQLite {
		if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
			return nil, fmt.Errorf("error migrating sqlite database: %w", err)
		}
	}

	return db, nil
}
