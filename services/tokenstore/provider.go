package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ProvideLocker(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (Locker, error) {
	switch cfg.Lock.Backend {
	case "", "memory":
		return NewMemoryLocker(cfg.Lock.AcquireTimeout), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("failed to connect to redis lock backend: %w", err)
				}
				if logger != nil {
					logger.Info("redis lock backend connected", zap.String("addr", cfg.Lock.RedisAddr))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.AcquireTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s (supported: memory, redis)", cfg.Lock.Backend)
	}
}

func ProvideStore(db *gorm.DB, locker Locker, cfg *config.Config, logger *logging.Service) Store {
	return NewGormStore(db, locker, cfg, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideLocker),
	fx.Provide(ProvideStore),
)
