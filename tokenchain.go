// Package tokenchain issues short-lived access tokens and rotating refresh tokens with
// reuse detection. New assembles the full service; the option helpers re-export the
// ones from internal/options.
package tokenchain

import (
	"github.com/tech-arch1tect/tokenchain/app"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/internal/options"
	"go.uber.org/fx"
)

type App = app.App

type Option = options.Option

func New(opts ...Option) (*App, error) {
	return app.New(opts...)
}

func WithConfig(cfg *config.Config) Option {
	return options.WithConfig(cfg)
}

func WithoutHTTP() Option {
	return options.WithoutHTTP()
}

func WithoutSweeper() Option {
	return options.WithoutSweeper()
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return options.WithFxOptions(fxOpts...)
}
