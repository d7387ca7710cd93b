package ratelimit

import (
	"context"

	"github.com/tech-arch1tect/tokenchain/config"
	"go.uber.org/fx"
)

func ProvideMemoryStore(lc fx.Lifecycle, cfg *config.Config) *MemoryStore {
	store := NewMemoryStore(cfg.RateLimit.Period)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Stop()
			return nil
		},
	})
	return store
}

var Options = fx.Options(
	fx.Provide(ProvideMemoryStore),
)
