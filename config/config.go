package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	RefreshToken RefreshTokenConfig `envPrefix:"REFRESH_TOKEN_"`
	Lock         LockConfig         `envPrefix:"LOCK_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
}

type AppConfig struct {
	Name    string `env:"NAME" envDefault:"tokenchain"`
	URL     string `env:"URL" envDefault:"http://localhost:4000"`
	Version string `env:"VERSION" envDefault:"dev"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"4000"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver       string        `env:"DRIVER" envDefault:"sqlite"`
	DSN          string        `env:"DSN" envDefault:"tokenchain.db"`
	AutoMigrate  bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s"`
}

type AuthConfig struct {
	BcryptCost int  `env:"BCRYPT_COST" envDefault:"10"`
	SeedUsers  bool `env:"SEED_USERS" envDefault:"false"`
}

type JWTConfig struct {
	SecretKey    string        `env:"SECRET_KEY"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	Issuer       string        `env:"ISSUER" envDefault:"tokenchain"`
}

type RefreshTokenConfig struct {
	TokenLength     int           `env:"TOKEN_LENGTH" envDefault:"64"`
	Expiry          time.Duration `env:"EXPIRY" envDefault:"168h"`
	RetentionTTL    time.Duration `env:"RETENTION_TTL" envDefault:"48h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	CookieName      string        `env:"COOKIE_NAME" envDefault:"refreshToken"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite  string        `env:"COOKIE_SAME_SITE" envDefault:"lax"`
}

type LockConfig struct {
	Backend        string        `env:"BACKEND" envDefault:"memory"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	TTL            time.Duration `env:"TTL" envDefault:"5s"`
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" envDefault:"2s"`
}

type RateLimitConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	Rate    int           `env:"RATE" envDefault:"10"`
	Period  time.Duration `env:"PERIOD" envDefault:"1m"`
}

type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}
	if err := validateRefreshTokenConfig(&c.RefreshToken); err != nil {
		return err
	}
	return validateLockConfig(&c.Lock)
}

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func validateJWTConfig(cfg *JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return errors.New("JWT secret key must be at least 32 characters long")
	}

	lower := strings.ToLower(cfg.SecretKey)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("JWT secret key contains weak patterns (%q)", pattern)
		}
	}

	if cfg.AccessExpiry <= 0 {
		return errors.New("JWT access expiry must be positive")
	}

	return nil
}

func validateRefreshTokenConfig(cfg *RefreshTokenConfig) error {
	if cfg.TokenLength < 16 {
		return errors.New("refresh token length must be at least 16 bytes")
	}
	if cfg.TokenLength > 128 {
		return errors.New("refresh token length cannot exceed 128 bytes")
	}
	if cfg.Expiry <= 0 {
		return errors.New("refresh token expiry must be positive")
	}
	if cfg.RetentionTTL < 0 {
		return errors.New("refresh token retention TTL cannot be negative")
	}

	switch strings.ToLower(cfg.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("refresh token cookie same-site must be: lax, strict, or none (got %q)", cfg.CookieSameSite)
	}

	return nil
}

func validateLockConfig(cfg *LockConfig) error {
	switch cfg.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock backend must be: memory or redis (got %q)", cfg.Backend)
	}

	if cfg.Backend == "redis" && cfg.TTL <= 0 {
		return errors.New("lock TTL must be positive when using the redis backend")
	}

	return nil
}
