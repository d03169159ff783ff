package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/config"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/services"
	"gamepulse/internal/shared/testutil"
	"gamepulse/internal/source"
)

func newHealthHandlerForTest(t *testing.T, withReport bool) *HealthHandler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	var report *services.ReportService
	if withReport {
		store, err := fetchcache.NewMemoryStore(8)
		require.NoError(t, err)
		cache, err := fetchcache.New(store, nil, fetchcache.Config{}, logger)
		require.NoError(t, err)
		provider := source.ProviderFunc(func(context.Context, source.QuerySpec) ([]source.RawRow, error) {
			return nil, nil
		})
		report = services.NewReportService(provider, cache, pipeline.Config{}, logger, nil)
	}

	paths := &config.Paths{DataDir: t.TempDir()}
	svc := services.NewHealthService("1.2.0", paths, report, logger)
	return NewHealthHandler(svc, logger)
}

func serveHandlerFunc(fn http.HandlerFunc, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestHealthCheckEndpoint(t *testing.T) {
	h := newHealthHandlerForTest(t, true)

	rec := serveHandlerFunc(h.HealthCheck, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.0", body["version"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		h := newHealthHandlerForTest(t, true)

		rec := serveHandlerFunc(h.ReadinessCheck, "/healthz/ready")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("not ready without report service", func(t *testing.T) {
		h := newHealthHandlerForTest(t, false)

		rec := serveHandlerFunc(h.ReadinessCheck, "/healthz/ready")

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "not_ready", body["status"])
	})
}

func TestLivenessEndpoint(t *testing.T) {
	h := newHealthHandlerForTest(t, true)

	rec := serveHandlerFunc(h.LivenessCheck, "/healthz/live")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "alive", body["status"])
	runtimeInfo, ok := body["runtime"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, runtimeInfo, "go_version")
}

func TestVersionEndpoint(t *testing.T) {
	h := newHealthHandlerForTest(t, true)

	rec := serveHandlerFunc(h.Version, "/api/v1/version")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "1.2.0", body["version"])
	assert.NotEmpty(t, body["go_version"])
}

func TestSystemStatsEndpoint(t *testing.T) {
	h := newHealthHandlerForTest(t, true)

	rec := serveHandlerFunc(h.SystemStats, "/api/v1/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "cache")
	assert.NotEmpty(t, body["go_version"])
}

func TestDetailedHealthEndpoint(t *testing.T) {
	h := newHealthHandlerForTest(t, true)

	rec := serveHandlerFunc(h.DetailedHealth, "/healthz/detailed")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Contains(t, body, "health")
	assert.Contains(t, body, "readiness")
	assert.Contains(t, body, "liveness")
	assert.Contains(t, body, "stats")
}
