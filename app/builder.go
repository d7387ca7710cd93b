package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/database"
	"github.com/tech-arch1tect/tokenchain/handlers"
	"github.com/tech-arch1tect/tokenchain/middleware/ratelimit"
	"github.com/tech-arch1tect/tokenchain/openapi"
	"github.com/tech-arch1tect/tokenchain/server"
	"github.com/tech-arch1tect/tokenchain/services/auth"
	"github.com/tech-arch1tect/tokenchain/services/jwt"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"github.com/tech-arch1tect/tokenchain/services/refreshtoken"
	"github.com/tech-arch1tect/tokenchain/services/retention"
	"github.com/tech-arch1tect/tokenchain/services/revocation"
	"github.com/tech-arch1tect/tokenchain/services/tokencodec"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	http      bool
	sweeper   bool
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		http:      true,
		sweeper:   true,
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.errors = append(b.errors, errors.New("config cannot be nil"))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.errors = append(b.errors, fmt.Errorf("failed to load config: %w", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithoutHTTP() *AppBuilder {
	b.http = false
	return b
}

func (b *AppBuilder) WithoutSweeper() *AppBuilder {
	b.sweeper = false
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}

	app := &App{config: b.config}

	fxApp := fx.New(b.buildFxOptions(app)...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	app.fx = fxApp

	return app, nil
}

func (b *AppBuilder) buildFxOptions(app *App) []fx.Option {
	opts := []fx.Option{
		fx.NopLogger,
		config.NewProvider(b.config),
		logging.Module,
		database.Module,
		metrics.Options,
		jwt.Options,
		revocation.Options,
		tokenstore.Options,
		tokencodec.Options,
		retention.Options,
		refreshtoken.Options,
		auth.Options,
		fx.Populate(&app.logger, &app.db, &app.auth, &app.refresh),
	}

	if b.sweeper {
		opts = append(opts, retention.RunSweeper)
	}

	if b.http {
		opts = append(opts,
			server.NewProvider(),
			ratelimit.Options,
			openapi.Options,
			handlers.Options,
			fx.Populate(&app.server),
		)
	}

	return append(opts, b.fxOptions...)
}
