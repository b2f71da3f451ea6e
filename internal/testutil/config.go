package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/internal/db"
)

// Workspace is an on-disk setup for command tests: a config file pointing at
// a SQLite database and a storage root inside a temporary directory.
type Workspace struct {
	ConfigPath  string
	StorageRoot string
	DB          *gorm.DB
}

// SetupWorkspace writes the config file, with extra appended to it, and
// opens the migrated database.
func SetupWorkspace(t *testing.T, extra string) *Workspace {
	t.Helper()

	dir := t.TempDir()
	w := &Workspace{
		ConfigPath:  filepath.Join(dir, "phase.hcl"),
		StorageRoot: filepath.Join(dir, "media"),
	}

	body := fmt.Sprintf(`
database {
  driver = "sqlite"
  dsn    = %q
}

storage {
  root = %q
}
%s`, filepath.Join(dir, "phase.db"), w.StorageRoot, extra)
	if err := os.WriteFile(w.ConfigPath, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load(w.ConfigPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	w.DB, err = db.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := w.DB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return w
}
