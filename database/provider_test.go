package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func createTestConfig(driver, dsn string, autoMigrate bool) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{
			Driver:      driver,
			DSN:         dsn,
			AutoMigrate: autoMigrate,
		},
	}
}

func newTestLogger() *logging.Service {
	logger, _ := logging.NewService(logging.Config{
		Level:      logging.Error,
		Format:     "console",
		OutputPath: "stdout",
	})
	return logger
}

type TestModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255"`
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestWithModels(t *testing.T) {
	option := WithModels(TestModel{}, &TestModel{})

	assert.Len(t, option.models, 2)
	assert.Len(t, WithModels().models, 0)
	assert.Len(t, DefaultModels().models, 2)
}

func TestProvideDatabase_SQLite(t *testing.T) {
	t.Run("in-memory", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), nil, newTestLogger())

		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		assert.NoError(t, sqlDB.Ping())
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
		closeDB(t, db)
	})

	t.Run("file based", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "tokens.db")

		db, err := ProvideDatabase(createTestConfig("sqlite", dbPath, false), nil, newTestLogger())

		require.NoError(t, err)
		closeDB(t, db)
		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("auto-migrates default models", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", true), DefaultModels(), nil)

		require.NoError(t, err)
		assert.True(t, db.Migrator().HasTable(&models.User{}))
		assert.True(t, db.Migrator().HasTable(&models.RefreshToken{}))
		assert.True(t, db.Migrator().HasIndex(&models.RefreshToken{}, "Token"))
		closeDB(t, db)
	})

	t.Run("auto-migration disabled", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), WithModels(TestModel{}), nil)

		require.NoError(t, err)
		assert.False(t, db.Migrator().HasTable(&TestModel{}))

		require.NoError(t, Migrate(db))
		assert.True(t, db.Migrator().HasTable(&models.User{}))
		closeDB(t, db)
	})
}

func TestProvideDatabase_UnsupportedDriver(t *testing.T) {
	for _, driver := range []string{"unsupported", ""} {
		db, err := ProvideDatabase(createTestConfig(driver, "x", false), nil, nil)

		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, err.Error(), "unsupported database driver")
		assert.Contains(t, err.Error(), "supported: sqlite, postgres, mysql")
	}
}

func TestModule(t *testing.T) {
	var db *gorm.DB
	app := fx.New(
		Module,
		fx.Provide(func() *config.Config {
			cfg := createTestConfig("sqlite", ":memory:", true)
			return &cfg
		}),
		fx.Provide(newTestLogger),
		fx.NopLogger,
		fx.Populate(&db),
	)

	require.NoError(t, app.Err())
	assert.True(t, db.Migrator().HasTable(&models.RefreshToken{}))
}
