package auth

import (
	"context"

	"github.com/tech-arch1tect/tokenchain/config"
	"go.uber.org/fx"
)

func registerSeeding(lc fx.Lifecycle, cfg *config.Config, service *Service) {
	if !cfg.Auth.SeedUsers {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return service.SeedUsers(ctx)
		},
	})
}

var Options = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerSeeding),
)
