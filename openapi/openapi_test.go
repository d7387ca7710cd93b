package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/tokenchain/testutils"
)

type tokenView struct {
	Token   string     `json:"token" doc:"Opaque refresh token" example:"abc"`
	Created time.Time  `json:"created"`
	Revoked *time.Time `json:"revoked,omitempty"`
	Secret  string     `json:"-"`
}

type userView struct {
	ID     uint        `json:"id"`
	Tokens []tokenView `json:"tokens,omitempty"`
	Parent *userView   `json:"parent,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func TestDocument_Schemas(t *testing.T) {
	api := New("tokens", "1.0.0")

	api.Document(http.MethodGet, "/users/:id").
		Summary("Get a user").
		PathParam("id", "User ID", true).
		Response(http.StatusOK, userView{}, "User").
		Build()

	spec := api.Spec()

	item := spec.Paths.Find("/users/{id}")
	require.NotNil(t, item)
	require.NotNil(t, item.Get)
	assert.Equal(t, "Get a user", item.Get.Summary)

	require.Len(t, item.Get.Parameters, 1)
	param := item.Get.Parameters[0].Value
	assert.Equal(t, "id", param.Name)
	assert.True(t, param.Required)
	assert.True(t, param.Schema.Value.Type.Is("integer"))

	resp := item.Get.Responses.Value("200")
	require.NotNil(t, resp)
	assert.Equal(t, "#/components/schemas/userView", resp.Value.Content["application/json"].Schema.Ref)

	user := spec.Components.Schemas["userView"].Value
	require.NotNil(t, user)
	assert.Equal(t, []string{"id"}, user.Required)
	assert.Equal(t, "#/components/schemas/userView", user.Properties["parent"].Value.AllOf[0].Ref)

	token := spec.Components.Schemas["tokenView"].Value
	require.NotNil(t, token)
	assert.NotContains(t, token.Properties, "Secret")
	assert.Equal(t, "date-time", token.Properties["created"].Value.Format)
	assert.True(t, token.Properties["revoked"].Value.Nullable)
	assert.Equal(t, "Opaque refresh token", token.Properties["token"].Value.Description)
	assert.ElementsMatch(t, []string{"token", "created"}, token.Required)
}

func TestDocument_BodySecurityAndCookies(t *testing.T) {
	api := New("tokens", "1.0.0").
		BearerAuth("bearerAuth", "JWT").
		CookieAuth("cookieAuth", "refreshToken", "refresh cookie")

	api.Document(http.MethodPost, "/users/revoke-token").
		Security("bearerAuth").
		CookieParam("refreshToken", "fallback").
		BodyOptional(credentials{}, "token").
		Response(http.StatusOK, nil, "done").
		SetsCookie(http.StatusOK, "new cookie").
		Build()

	spec := api.Spec()
	op := spec.Paths.Find("/users/revoke-token").Post
	require.NotNil(t, op)

	assert.False(t, op.RequestBody.Value.Required)
	require.NotNil(t, op.Security)
	require.Len(t, *op.Security, 1)
	assert.Contains(t, (*op.Security)[0], "bearerAuth")

	require.Len(t, op.Parameters, 1)
	assert.Equal(t, "cookie", op.Parameters[0].Value.In)

	resp := op.Responses.Value("200").Value
	assert.Empty(t, resp.Content)
	assert.Contains(t, resp.Headers, "Set-Cookie")

	cookie := spec.Components.SecuritySchemes["cookieAuth"].Value
	assert.Equal(t, "cookie", cookie.In)
	assert.Equal(t, "refreshToken", cookie.Name)
}

func TestOpenAPI_Handlers(t *testing.T) {
	api := ProvideOpenAPI(testutils.GetTestConfig())
	api.Document(http.MethodPost, "/users/authenticate").
		Body(credentials{}, "Credentials").
		Response(http.StatusOK, nil, "ok").
		Build()

	e := echo.New()
	e.GET("/openapi.json", api.JSONHandler())
	e.GET("/openapi.yaml", api.YAMLHandler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/users/authenticate")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi:") || strings.Contains(rec.Body.String(), "\nopenapi:"))
}

func TestToOpenAPIPath(t *testing.T) {
	assert.Equal(t, "/users/{id}/refresh-tokens", toOpenAPIPath("/users/:id/refresh-tokens"))
	assert.Equal(t, "/users", toOpenAPIPath("/users"))
}
