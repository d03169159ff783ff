package http

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/aggregate"
	apierrors "gamepulse/internal/errors"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/identity"
	"gamepulse/internal/series"
	"gamepulse/internal/services"
	"gamepulse/internal/shared/testutil"
	"gamepulse/internal/source"
)

func newMarketRouter(t *testing.T, stub *stubReportService) chi.Router {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	r := chi.NewRouter()
	NewMarketHandler(stub, logger).RegisterRoutes(r)
	return r
}

func TestGetGroups(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubReportService{
			groups: []aggregate.Group{{Key: "puzzle"}, {Key: "rpg"}},
		}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/groups")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, float64(2), body["count"])
	})

	t.Run("no runs yet", func(t *testing.T) {
		stub := &stubReportService{groupsErr: services.ErrNoRuns}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/groups")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "REPORT_NOT_FOUND", body["error_code"])
	})
}

func TestGetGroup(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubReportService{
			group: aggregate.Group{Key: "rpg", Total: 400},
		}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/groups/rpg")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "rpg", data["key"])
		assert.Equal(t, float64(400), data["total"])
	})

	t.Run("unknown key", func(t *testing.T) {
		stub := &stubReportService{
			groupErr: fmt.Errorf("%w: %q", services.ErrGroupNotFound, "racing"),
		}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/groups/racing")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "GROUP_NOT_FOUND", body["error_code"])
		assert.Equal(t, apierrors.TypeNotFound, body["type"])
	})

	t.Run("no runs yet", func(t *testing.T) {
		stub := &stubReportService{groupErr: services.ErrNoRuns}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/groups/rpg")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "REPORT_NOT_FOUND", body["error_code"])
	})
}

func TestGetEntities(t *testing.T) {
	stub := &stubReportService{
		entities: []identity.Entity{
			{CanonicalID: "id-1", DisplayName: "Big Game"},
			{CanonicalID: "id-2", DisplayName: "Small Game"},
		},
	}
	router := newMarketRouter(t, stub)

	rec := getPath(t, router, "/entities")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestGetEntity(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubReportService{
			entity: identity.Entity{CanonicalID: "id-1", DisplayName: "Big Game"},
			owned: []series.TimeSeries{{
				CanonicalID: "id-1",
				Kind:        source.MetricRevenue,
			}},
		}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/entities/id-1")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		entity, ok := data["entity"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Big Game", entity["display_name"])
		owned, ok := data["series"].([]interface{})
		require.True(t, ok)
		assert.Len(t, owned, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		stub := &stubReportService{entityErr: services.ErrEntityNotFound}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/entities/nope")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "ENTITY_NOT_FOUND", body["error_code"])
	})

	t.Run("oversized id", func(t *testing.T) {
		stub := &stubReportService{}
		router := newMarketRouter(t, stub)

		rec := getPath(t, router, "/entities/"+strings.Repeat("x", 65))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
	})
}

func TestGetCacheStats(t *testing.T) {
	stub := &stubReportService{
		stats: fetchcache.Stats{Hits: 4, Misses: 2, Fetches: 2},
	}
	router := newMarketRouter(t, stub)

	rec := getPath(t, router, "/cache/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), data["hits"])
	assert.Equal(t, float64(2), data["misses"])
}
