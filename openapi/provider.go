package openapi

import (
	"github.com/tech-arch1tect/tokenchain/config"
	"go.uber.org/fx"
)

const (
	BearerScheme = "bearerAuth"
	CookieScheme = "refreshTokenCookie"
)

func ProvideOpenAPI(cfg *config.Config) *OpenAPI {
	return New(cfg.App.Name, cfg.App.Version).
		Description("Username/password authentication with rotating refresh tokens.").
		Server(cfg.App.URL, "").
		BearerAuth(BearerScheme, "Short-lived JWT access token").
		CookieAuth(CookieScheme, cfg.RefreshToken.CookieName, "HTTP-only refresh token cookie")
}

var Options = fx.Options(
	fx.Provide(ProvideOpenAPI),
)
