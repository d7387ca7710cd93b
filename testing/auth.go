package e2etesting

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

const refreshCookieName = "refreshToken"

type Session struct {
	UserID       uint   `json:"id"`
	Username     string `json:"username"`
	JwtToken     string `json:"jwtToken"`
	RefreshToken string `json:"-"`
}

func (s *Session) Bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.JwtToken}
}

// AuthHelper wraps the /users token endpoints.
type AuthHelper struct {
	HTTPClient *HTTPClient
}

func NewAuthHelper(httpClient *HTTPClient) *AuthHelper {
	return &AuthHelper{HTTPClient: httpClient}
}

func (h *AuthHelper) Authenticate(username, password string) (*Response, error) {
	return h.HTTPClient.Post("/users/authenticate", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// Refresh presents the refresh token cookie held in the client's jar.
func (h *AuthHelper) Refresh() (*Response, error) {
	return h.HTTPClient.Post("/users/refresh-token", nil, nil)
}

// RefreshWith presents token explicitly instead of the jar's cookie.
func (h *AuthHelper) RefreshWith(token string) (*Response, error) {
	return h.HTTPClient.WithoutCookies().Request(&RequestOptions{
		Method:  http.MethodPost,
		Path:    "/users/refresh-token",
		Cookies: []*http.Cookie{{Name: refreshCookieName, Value: token}},
	})
}

func (h *AuthHelper) Revoke(session *Session, token string) (*Response, error) {
	var body any
	if token != "" {
		body = map[string]string{"token": token}
	}
	return h.HTTPClient.Post("/users/revoke-token", body, session.Bearer())
}

// MustSession asserts a successful authenticate or refresh response and extracts the tokens.
func MustSession(t *testing.T, resp *Response, err error) *Session {
	t.Helper()

	require.NoError(t, err)
	resp.AssertStatus(t, http.StatusOK)

	var session Session
	require.NoError(t, resp.GetJSON(&session))

	cookie := resp.Cookie(refreshCookieName)
	require.NotNil(t, cookie, "refresh token cookie not set")
	session.RefreshToken = cookie.Value

	return &session
}
