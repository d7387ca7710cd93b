// Package e2etesting drives a running tokenchain server over real HTTP in end-to-end tests.
package e2etesting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type RequestOptions struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
	Cookies []*http.Cookie
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) GetJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (r *Response) GetString() string {
	return string(r.Body)
}

func (r *Response) AssertStatus(t *testing.T, expectedStatus int) {
	t.Helper()
	require.Equal(t, expectedStatus, r.StatusCode, "unexpected status code. Response: %s", r.GetString())
}

// Cookie returns the cookie named name set by this response, or nil.
func (r *Response) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HTTPClient keeps cookies between requests, so the refresh token cookie set by one call is
// presented on the next like a browser would.
type HTTPClient struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		Client:  &http.Client{Timeout: 10 * time.Second, Jar: jar},
		BaseURL: baseURL,
	}
}

func (c *HTTPClient) Get(path string, headers map[string]string) (*Response, error) {
	return c.Request(&RequestOptions{Method: http.MethodGet, Path: path, Headers: headers})
}

func (c *HTTPClient) Post(path string, body any, headers map[string]string) (*Response, error) {
	return c.Request(&RequestOptions{Method: http.MethodPost, Path: path, Body: body, Headers: headers})
}

func (c *HTTPClient) Request(opts *RequestOptions) (*Response, error) {
	var bodyReader io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(opts.Method, c.BaseURL+opts.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range opts.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{Response: resp, Body: body}, nil
}

// WithoutCookies returns a client sharing the base URL but with an empty cookie jar.
func (c *HTTPClient) WithoutCookies() *HTTPClient {
	return NewHTTPClient(c.BaseURL)
}
