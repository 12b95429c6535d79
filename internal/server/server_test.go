package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/fuelops/internal/api/v1"
	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/config"
	"github.com/gosuda/fuelops/internal/server"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type statsFunc func(ctx context.Context) (*archival.Stats, error)

func (f statsFunc) Stats(ctx context.Context) (*archival.Stats, error) { return f(ctx) }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:         ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			CORSOrigins:  []string{"http://localhost:5173"},
			RateLimit:    100,
			RateBurst:    100,
		},
	}
}

func serve(t *testing.T, srv *server.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks []server.Pinger
		want   int
		body   string
	}{
		{name: "no checks", want: http.StatusOK, body: `{"status":"ok"}`},
		{name: "healthy store", checks: []server.Pinger{pingFunc(func(context.Context) error { return nil })}, want: http.StatusOK, body: `{"status":"ok"}`},
		{name: "store down", checks: []server.Pinger{pingFunc(func(context.Context) error { return errors.New("refused") })}, want: http.StatusServiceUnavailable, body: `{"status":"unavailable"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := server.New(t.Context(), testConfig(), v1.ArchivalDeps{}, nil, tc.checks...)
			rec := serve(t, srv, http.MethodGet, "/healthz")

			assert.Equal(t, tc.want, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := server.New(t.Context(), testConfig(), v1.ArchivalDeps{}, nil)
	rec := serve(t, srv, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fuelops_archival_run_in_progress")
}

func TestWebSocketWithoutRedis(t *testing.T) {
	t.Parallel()

	srv := server.New(t.Context(), testConfig(), v1.ArchivalDeps{}, nil)
	rec := serve(t, srv, http.MethodGet, "/ws/archival")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRoutesMounted(t *testing.T) {
	t.Parallel()

	deps := v1.ArchivalDeps{
		Stats: statsFunc(func(context.Context) (*archival.Stats, error) {
			return &archival.Stats{SpaceSavedApproximate: true}, nil
		}),
	}
	srv := server.New(t.Context(), testConfig(), deps, nil)
	rec := serve(t, srv, http.MethodGet, "/api/v1/archival/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"space_saved_approximate":true`)
}
