package database

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfig_Dialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default is postgres", cfg: Config{Host: "localhost"}, want: "postgres"},
		{name: "postgres", cfg: Config{Driver: DriverPostgres, DSN: "postgres://x"}, want: "postgres"},
		{name: "sqlite", cfg: Config{Driver: DriverSQLite, DSN: ":memory:"}, want: "sqlite"},
		{name: "sqlite without dsn", cfg: Config{Driver: DriverSQLite}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "mysql"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.cfg.Dialector()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestConfig_PostgresDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "phase", Password: "secret", DBName: "phase"}
	assert.Equal(t,
		"host=db port=5432 user=phase password=secret dbname=phase sslmode=disable",
		cfg.PostgresDSN())

	cfg.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.PostgresDSN())
}

func TestConnect_SQLite(t *testing.T) {
	db, err := Connect(Config{Driver: DriverSQLite, DSN: ":memory:"}, hclog.NewNullLogger())
	require.NoError(t, err)

	stats, err := GetPoolStats(db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections, "sqlite defaults to a single connection")
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle, "open = in-use + idle")
}

func TestConnect_CustomPool(t *testing.T) {
	db, err := Connect(Config{Driver: DriverSQLite, DSN: ":memory:", MaxOpenConns: 3}, nil)
	require.NoError(t, err)

	stats, err := GetPoolStats(db)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MaxOpenConnections)
}

func TestConnect_TranslatesDuplicateKey(t *testing.T) {
	type widget struct {
		ID   uint   `gorm:"primaryKey"`
		Code string `gorm:"uniqueIndex"`
	}

	db, err := Connect(Config{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	require.NoError(t, db.Create(&widget{Code: "A"}).Error)
	err = db.Create(&widget{Code: "A"}).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestGormLogger_LogMode(t *testing.T) {
	l := NewGormLogger(hclog.NewNullLogger())
	silent := l.LogMode(logger.Silent)
	assert.NotSame(t, l, silent)

	// Silent mode never invokes the SQL callback.
	called := false
	silent.Trace(t.Context(), time.Now(), func() (string, int64) {
		called = true
		return "", 0
	}, nil)
	assert.False(t, called)
}
