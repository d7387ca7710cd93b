package options

import (
	"github.com/tech-arch1tect/tokenchain/config"
	"go.uber.org/fx"
)

type Options struct {
	Config         *config.Config
	DisableHTTP    bool
	DisableSweeper bool
	ExtraFxOptions []fx.Option
}

type Option func(*Options)

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

// WithoutHTTP builds the token services without the echo server, for CLI commands.
func WithoutHTTP() Option {
	return func(opts *Options) {
		opts.DisableHTTP = true
	}
}

func WithoutSweeper() Option {
	return func(opts *Options) {
		opts.DisableSweeper = true
	}
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return func(opts *Options) {
		opts.ExtraFxOptions = append(opts.ExtraFxOptions, fxOpts...)
	}
}

func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
