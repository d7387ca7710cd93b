package testutils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/tokenchain/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database migrated with the token store schema
// plus any extra models.
func SetupTestDB(t *testing.T, extra ...any) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	schema := append([]any{&models.User{}, &models.RefreshToken{}}, extra...)
	require.NoError(t, db.AutoMigrate(schema...))

	return db
}

func CleanupTestDB(t *testing.T, db *gorm.DB, tables ...string) {
	for _, table := range tables {
		err := db.Exec("DELETE FROM " + table).Error
		require.NoError(t, err)
	}
}

// LoadTokens returns the persisted tokens of a user ordered by creation.
func LoadTokens(t *testing.T, db *gorm.DB, userID uint) []models.RefreshToken {
	t.Helper()

	var tokens []models.RefreshToken
	require.NoError(t, db.Where("user_id = ?", userID).Order("id").Find(&tokens).Error)
	return tokens
}

// LoadToken returns a persisted token by its string.
func LoadToken(t *testing.T, db *gorm.DB, token string) models.RefreshToken {
	t.Helper()

	var rt models.RefreshToken
	require.NoError(t, db.Where("token = ?", token).First(&rt).Error)
	return rt
}

func AssertErrorType(t *testing.T, expected, actual error) {
	t.Helper()
	require.Error(t, actual)
	require.ErrorIs(t, actual, expected)
}
