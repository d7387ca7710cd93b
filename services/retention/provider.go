package retention

import (
	"context"

	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.uber.org/fx"
)

func ProvideSweeper(lc fx.Lifecycle, cfg *config.Config, store tokenstore.Store, policy *Policy, logger *logging.Service) *Sweeper {
	sweeper := NewSweeper(store, policy, cfg.RefreshToken.CleanupInterval, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})

	return sweeper
}

var Options = fx.Options(
	fx.Provide(NewPolicy),
	fx.Provide(ProvideSweeper),
)

// RunSweeper forces construction of the sweeper so its lifecycle hooks are registered.
var RunSweeper = fx.Invoke(func(*Sweeper) {})
