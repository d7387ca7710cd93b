package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:    "Test App",
			URL:     "http://localhost:4000",
			Version: "test",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "4000",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			DSN:          ":memory:",
			AutoMigrate:  true,
			QueryTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			BcryptCost: bcrypt.MinCost,
		},
		JWT: config.JWTConfig{
			SecretKey:    "k7Qm2vX9pL4rT8wN3bY6hJ1cF5gD0sZa",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "tokenchain-test",
		},
		RefreshToken: config.RefreshTokenConfig{
			TokenLength:     64,
			Expiry:          7 * 24 * time.Hour,
			RetentionTTL:    48 * time.Hour,
			CleanupInterval: 0,
			CookieName:      "refreshToken",
			CookieSameSite:  "lax",
		},
		Lock: config.LockConfig{
			Backend:        "memory",
			TTL:            5 * time.Second,
			AcquireTimeout: 2 * time.Second,
		},
		RateLimit: config.RateLimitConfig{
			Enabled: false,
			Rate:    10,
			Period:  time.Minute,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var TestUsers = struct {
	Default struct {
		FirstName string
		LastName  string
		Username  string
		Password  string
	}
}{
	Default: struct {
		FirstName string
		LastName  string
		Username  string
		Password  string
	}{
		FirstName: "Test",
		LastName:  "User",
		Username:  "test",
		Password:  "test",
	},
}

// CreateUser inserts a user whose password hash uses the minimum bcrypt cost.
func CreateUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		FirstName:    "Test",
		LastName:     "User",
		Username:     username,
		PasswordHash: string(hash),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateRefreshToken inserts a token for the user, letting mutate adjust it before the insert.
func CreateRefreshToken(t *testing.T, db *gorm.DB, userID uint, token string, mutate func(*models.RefreshToken)) *models.RefreshToken {
	t.Helper()

	now := time.Now()
	rt := &models.RefreshToken{
		UserID:      userID,
		Token:       token,
		Created:     now,
		Expires:     now.Add(7 * 24 * time.Hour),
		CreatedByIP: "127.0.0.1",
	}
	if mutate != nil {
		mutate(rt)
	}
	require.NoError(t, db.Create(rt).Error)
	return rt
}

// Clock is a manually advanced time source for services with an injectable now.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
