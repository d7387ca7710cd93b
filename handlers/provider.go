package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/tokenchain/config"
	jwtmiddleware "github.com/tech-arch1tect/tokenchain/middleware/jwt"
	"github.com/tech-arch1tect/tokenchain/middleware/ratelimit"
	"github.com/tech-arch1tect/tokenchain/openapi"
	"github.com/tech-arch1tect/tokenchain/server"
	"github.com/tech-arch1tect/tokenchain/services/auth"
	"github.com/tech-arch1tect/tokenchain/services/jwt"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"github.com/tech-arch1tect/tokenchain/services/refreshtoken"
	"go.uber.org/fx"
)

func ProvideUsersHandler(authService *auth.Service, refreshService *refreshtoken.Service, cfg *config.Config, logger *logging.Service) *UsersHandler {
	return NewUsersHandler(authService, refreshService, cfg, logger)
}

// AuthLimiter limits credential checks per client IP. It returns nil when rate limiting
// is disabled.
func AuthLimiter(cfg *config.Config, store *ratelimit.MemoryStore) echo.MiddlewareFunc {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.Middleware(&ratelimit.Config{
		Store:     store,
		Rate:      cfg.RateLimit.Rate,
		Period:    cfg.RateLimit.Period,
		CountMode: ratelimit.CountAll,
		KeyGenerator: func(c echo.Context) string {
			return "authenticate:" + ClientIP(c)
		},
	})
}

type routeParams struct {
	fx.In

	Config  *config.Config
	Logger  *logging.Service
	Server  *server.Server
	Users   *UsersHandler
	JWT     *jwt.Service
	Limits  *ratelimit.MemoryStore
	Metrics *metrics.Metrics
	OpenAPI *openapi.OpenAPI
}

func registerRoutes(p routeParams) {
	e := p.Server.Echo()
	e.HTTPErrorHandler = ErrorHandler(p.Logger)
	e.Validator = NewRequestValidator()

	p.Users.RegisterRoutes(e, jwtmiddleware.RequireJWT(p.JWT), AuthLimiter(p.Config, p.Limits))
	p.Users.Document(p.OpenAPI)

	e.GET("/openapi.json", p.OpenAPI.JSONHandler())
	e.GET("/openapi.yaml", p.OpenAPI.YAMLHandler())

	if p.Config.Metrics.Enabled {
		e.GET(p.Config.Metrics.Path, echo.WrapHandler(p.Metrics.Handler()))
	}
}

var Options = fx.Options(
	fx.Provide(ProvideUsersHandler),
	fx.Invoke(registerRoutes),
)
