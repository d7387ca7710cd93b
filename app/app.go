package app

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/internal/options"
	"github.com/tech-arch1tect/tokenchain/server"
	"github.com/tech-arch1tect/tokenchain/services/auth"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/refreshtoken"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stopTimeout = 30 * time.Second

type App struct {
	fx      *fx.App
	config  *config.Config
	logger  *logging.Service
	db      *gorm.DB
	server  *server.Server
	auth    *auth.Service
	refresh *refreshtoken.Service
}

// New assembles the application from functional options. Without WithConfig the
// configuration is read from the environment.
func New(opts ...options.Option) (*App, error) {
	o := options.Apply(opts...)

	b := NewApp()
	if o.Config != nil {
		b.WithConfig(o.Config)
	}
	if o.DisableHTTP {
		b.WithoutHTTP()
	}
	if o.DisableSweeper {
		b.WithoutSweeper()
	}
	b.WithFxOptions(o.ExtraFxOptions...)

	return b.Build()
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Run starts the application and blocks until SIGINT, SIGTERM or an internal shutdown
// request, then stops it gracefully.
func (a *App) Run() error {
	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	sig := <-a.fx.Wait()
	a.logger.Info("shutdown requested", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))

	if err := a.Stop(); err != nil {
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("application exited with code %d", sig.ExitCode)
	}
	return nil
}

func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
		return err
	}
	return nil
}

// Server is nil when the application was built without HTTP.
func (a *App) Server() *server.Server {
	return a.server
}

func (a *App) Echo() *echo.Echo {
	if a.server == nil {
		return nil
	}
	return a.server.Echo()
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Auth() *auth.Service {
	return a.auth
}

func (a *App) RefreshTokens() *refreshtoken.Service {
	return a.refresh
}
