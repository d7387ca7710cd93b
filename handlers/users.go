package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/config"
	jwtmiddleware "github.com/tech-arch1tect/tokenchain/middleware/jwt"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/openapi"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/refreshtoken"
	"go.uber.org/zap"
)

type UserService interface {
	Authenticate(ctx context.Context, username, password string, origin models.Origin) (*refreshtoken.TokenPair, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListRefreshTokens(ctx context.Context, userID uint) ([]models.RefreshToken, error)
}

type TokenService interface {
	Refresh(ctx context.Context, token string, origin models.Origin) (*refreshtoken.TokenPair, error)
	RevokeToken(ctx context.Context, token, ip string) error
}

type AuthenticateRequest struct {
	Username string `json:"username" validate:"required,max=100" example:"test"`
	Password string `json:"password" validate:"required" example:"test"`
}

type RevokeTokenRequest struct {
	Token string `json:"token,omitempty" doc:"Refresh token to revoke. Falls back to the refresh token cookie."`
}

// AuthenticateResponse never carries the refresh token; it travels in an HTTP-only cookie.
type AuthenticateResponse struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	JwtToken  string `json:"jwtToken" doc:"Access token for the Authorization header"`
}

type UsersHandler struct {
	users  UserService
	tokens TokenService
	config *config.Config
	logger *logging.Service
}

func NewUsersHandler(users UserService, tokens TokenService, cfg *config.Config, logger *logging.Service) *UsersHandler {
	return &UsersHandler{
		users:  users,
		tokens: tokens,
		config: cfg,
		logger: logger.Named("handlers"),
	}
}

func (h *UsersHandler) Authenticate(c echo.Context) error {
	var req AuthenticateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pair, err := h.users.Authenticate(c.Request().Context(), req.Username, req.Password, requestOrigin(c))
	if err != nil {
		return err
	}

	h.setTokenCookie(c, pair.RefreshToken, pair.RefreshExpires)
	return c.JSON(http.StatusOK, newAuthenticateResponse(pair))
}

func (h *UsersHandler) RefreshToken(c echo.Context) error {
	token := h.cookieToken(c)

	pair, err := h.tokens.Refresh(c.Request().Context(), token, requestOrigin(c))
	if err != nil {
		return err
	}

	h.setTokenCookie(c, pair.RefreshToken, pair.RefreshExpires)
	return c.JSON(http.StatusOK, newAuthenticateResponse(pair))
}

// RevokeToken accepts the token in the body or, failing that, the refresh token cookie.
func (h *UsersHandler) RevokeToken(c echo.Context) error {
	var req RevokeTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = h.cookieToken(c)
	}
	if token == "" {
		return c.JSON(http.StatusBadRequest, MessageResponse{Message: "Token is required"})
	}

	if err := h.tokens.RevokeToken(c.Request().Context(), token, ClientIP(c)); err != nil {
		return err
	}

	if h.logger != nil {
		h.logger.Info("refresh token revoked",
			zap.Uint("by_user_id", jwtmiddleware.GetUserID(c)),
			zap.String("ip", ClientIP(c)))
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Token revoked"})
}

func (h *UsersHandler) GetAll(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (h *UsersHandler) GetByID(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUserByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// GetRefreshTokens lists the caller's own tokens, active and inactive.
func (h *UsersHandler) GetRefreshTokens(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if id != jwtmiddleware.GetUserID(c) {
		return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
	}

	tokens, err := h.users.ListRefreshTokens(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

// RegisterRoutes mounts the /users routes. authLimiter guards the credential check and may
// be nil.
func (h *UsersHandler) RegisterRoutes(e *echo.Echo, requireJWT, authLimiter echo.MiddlewareFunc) {
	g := e.Group("/users")

	if authLimiter != nil {
		g.POST("/authenticate", h.Authenticate, authLimiter)
	} else {
		g.POST("/authenticate", h.Authenticate)
	}
	g.POST("/refresh-token", h.RefreshToken)
	g.POST("/revoke-token", h.RevokeToken, requireJWT)

	g.GET("", h.GetAll, requireJWT)
	g.GET("/:id", h.GetByID, requireJWT)
	g.GET("/:id/refresh-tokens", h.GetRefreshTokens, requireJWT)
}

func (h *UsersHandler) Document(api *openapi.OpenAPI) {
	cookie := h.config.RefreshToken.CookieName

	api.Tag("users", "Authentication and refresh token lifecycle")

	api.Document(http.MethodPost, "/users/authenticate").
		Summary("Authenticate with username and password").
		Tags("users").
		Body(AuthenticateRequest{}, "Credentials").
		Response(http.StatusOK, AuthenticateResponse{}, "Authenticated").
		SetsCookie(http.StatusOK, "HTTP-only "+cookie+" cookie holding a new refresh token").
		Response(http.StatusBadRequest, MessageResponse{}, "Invalid credentials or request").
		Response(http.StatusTooManyRequests, MessageResponse{}, "Rate limit exceeded").
		Build()

	api.Document(http.MethodPost, "/users/refresh-token").
		Summary("Rotate the refresh token").
		Tags("users").
		CookieParam(cookie, "Current refresh token").
		Response(http.StatusOK, AuthenticateResponse{}, "Rotated").
		SetsCookie(http.StatusOK, "HTTP-only "+cookie+" cookie holding the successor token").
		Response(http.StatusBadRequest, MessageResponse{}, "Invalid token").
		Build()

	api.Document(http.MethodPost, "/users/revoke-token").
		Summary("Revoke a refresh token").
		Tags("users").
		Security(openapi.BearerScheme).
		CookieParam(cookie, "Refresh token used when the body has none").
		BodyOptional(RevokeTokenRequest{}, "Token to revoke").
		Response(http.StatusOK, MessageResponse{}, "Token revoked").
		Response(http.StatusBadRequest, MessageResponse{}, "Token missing or invalid").
		Response(http.StatusUnauthorized, MessageResponse{}, "Missing or invalid access token").
		Build()

	api.Document(http.MethodGet, "/users").
		Summary("List users").
		Tags("users").
		Security(openapi.BearerScheme).
		Response(http.StatusOK, []models.User{}, "Users").
		Build()

	api.Document(http.MethodGet, "/users/:id").
		Summary("Get a user").
		Tags("users").
		Security(openapi.BearerScheme).
		PathParam("id", "User ID", true).
		Response(http.StatusOK, models.User{}, "User").
		Response(http.StatusNotFound, MessageResponse{}, "User not found").
		Build()

	api.Document(http.MethodGet, "/users/:id/refresh-tokens").
		Summary("List the caller's refresh tokens").
		Tags("users").
		Security(openapi.BearerScheme).
		PathParam("id", "User ID, must be the caller's", true).
		Response(http.StatusOK, []models.RefreshToken{}, "Refresh tokens including revoked and expired ones").
		Response(http.StatusForbidden, MessageResponse{}, "Not the caller's user ID").
		Build()
}

func (h *UsersHandler) cookieToken(c echo.Context) string {
	cookie, err := c.Cookie(h.config.RefreshToken.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *UsersHandler) setTokenCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.config.RefreshToken.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.config.RefreshToken.CookieSecure,
		SameSite: sameSite(h.config.RefreshToken.CookieSameSite),
	})
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func userIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.Validation("id", "id must be a positive integer")
	}
	return uint(id), nil
}

func newAuthenticateResponse(pair *refreshtoken.TokenPair) AuthenticateResponse {
	return AuthenticateResponse{
		ID:        pair.User.ID,
		FirstName: pair.User.FirstName,
		LastName:  pair.User.LastName,
		Username:  pair.User.Username,
		JwtToken:  pair.AccessToken,
	}
}
