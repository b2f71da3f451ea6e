package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/phase-edms/phase/pkg/models"
)

// SetupDB creates a new in-memory SQLite database with all models migrated.
// The pool is limited to a single connection so every query sees the same
// in-memory database. The database is closed when the test completes.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// CreateCategory inserts a category for the given document type.
func CreateCategory(t *testing.T, db *gorm.DB, code, documentType string) *models.Category {
	t.Helper()

	c := &models.Category{
		Code:         code,
		Name:         code,
		DocumentType: documentType,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to create category: %v", err)
	}
	return c
}
