package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/services/logging"
)

func testConfig(port string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: port,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig("8080")

	t.Run("with logger", func(t *testing.T) {
		loggerService := &logging.Service{}
		server := New(cfg, loggerService)

		if server.cfg != cfg {
			t.Error("expected config to be set")
		}
		if server.logger != loggerService {
			t.Error("expected logger to be set")
		}
		if server.echo == nil {
			t.Error("expected echo instance to be created")
		}
	})

	t.Run("without logger", func(t *testing.T) {
		server := New(cfg, nil)

		if server.logger != nil {
			t.Error("expected logger to be nil")
		}
		if server.Addr() != "127.0.0.1:8080" {
			t.Errorf("expected configured address, got %q", server.Addr())
		}
	})
}

func TestServer_Health(t *testing.T) {
	server := New(testConfig("8080"), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestServer_Routes(t *testing.T) {
	server := New(testConfig("8080"), nil)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "test")
	}
	server.Get("/test", handler)
	server.Post("/test-post", handler)
	server.Group("/api").GET("/test", handler)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/test"},
		{http.MethodPost, "/test-post"},
		{http.MethodGet, "/api/test"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		server.Echo().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.path, http.StatusOK, rec.Code)
		}
	}
}

func TestServer_RecoversFromPanics(t *testing.T) {
	server := New(testConfig("8080"), nil)
	server.Get("/panic", func(c echo.Context) error {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestServer_ListenServeShutdown(t *testing.T) {
	server := New(testConfig("0"), nil)

	if err := server.Listen(); err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.Addr()))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d (%s)", http.StatusOK, resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenConflict(t *testing.T) {
	first := New(testConfig("0"), nil)
	if err := first.Listen(); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer first.Echo().Listener.Close()

	_, port, _ := strings.Cut(first.Addr(), "127.0.0.1:")
	second := New(testConfig(port), nil)

	if err := second.Listen(); err == nil {
		second.Echo().Listener.Close()
		t.Error("expected second listen on the same port to fail")
	}
}
