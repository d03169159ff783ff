package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/aggregate"
	apierrors "gamepulse/internal/errors"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/identity"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/series"
	"gamepulse/internal/services"
	"gamepulse/internal/shared/testutil"
	"gamepulse/internal/source"
)

// stubReportService is a canned ReportServiceInterface for handler tests.
type stubReportService struct {
	lastOpts services.RunOptions

	runResult   *pipeline.RunResult
	runErr      error
	record      *services.RunRecord
	latestErr   error
	deltas      []aggregate.GroupDelta
	deltasErr   error
	groups      []aggregate.Group
	groupsErr   error
	group       aggregate.Group
	groupErr    error
	entities    []identity.Entity
	entitiesErr error
	entity      identity.Entity
	owned       []series.TimeSeries
	entityErr   error
	running     bool
	stats       fetchcache.Stats
}

func (s *stubReportService) Run(_ context.Context, opts services.RunOptions) (*pipeline.RunResult, error) {
	s.lastOpts = opts
	return s.runResult, s.runErr
}

func (s *stubReportService) Running() bool { return s.running }

func (s *stubReportService) Latest() (*services.RunRecord, error) { return s.record, s.latestErr }

func (s *stubReportService) Deltas() ([]aggregate.GroupDelta, error) { return s.deltas, s.deltasErr }

func (s *stubReportService) Groups() ([]aggregate.Group, error) { return s.groups, s.groupsErr }

func (s *stubReportService) Group(string) (aggregate.Group, error) { return s.group, s.groupErr }

func (s *stubReportService) Entities() ([]identity.Entity, error) {
	return s.entities, s.entitiesErr
}

func (s *stubReportService) Entity(string) (identity.Entity, []series.TimeSeries, error) {
	return s.entity, s.owned, s.entityErr
}

func (s *stubReportService) CacheStats() fetchcache.Stats { return s.stats }

func newReportHandler(t *testing.T, stub *stubReportService) (*ReportHandler, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, records := testutil.NewTestLogger(t)
	return NewReportHandler(stub, logger, apierrors.NewErrorHandler(logger, false)), records
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func concentrationBody(t *testing.T, groupBy string, topN []int) string {
	t.Helper()
	req := ConcentrationRequest{
		Specs: []source.QuerySpec{{
			EntityIDs: []string{"app-big", "app-small"},
			Metric:    source.MetricRevenue,
			Range: source.DateRange{
				From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
			},
			Granularity: source.GranularityDaily,
		}},
		GroupBy: groupBy,
		TopN:    topN,
	}
	buf, err := json.Marshal(req)
	require.NoError(t, err)
	return string(buf)
}

func TestRunConcentrationSuccess(t *testing.T) {
	stub := &stubReportService{runResult: &pipeline.RunResult{RowCount: 2}}
	h, records := newReportHandler(t, stub)

	rec := postJSON(t, h.Routes(), "/concentration", concentrationBody(t, "category", []int{1, 3}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "success", body["status"])
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["row_count"])

	assert.Equal(t, "category", stub.lastOpts.GroupBy)
	assert.Equal(t, []int{1, 3}, stub.lastOpts.TopN)
	require.Len(t, stub.lastOpts.Specs, 1)
	assert.True(t, records.ContainsMessage("starting concentration run"))
}

func TestRunConcentrationRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty specs", body: `{"specs":[]}`},
		{name: "malformed json", body: `{"specs": [`},
		{name: "unknown granularity", body: `{"specs":[{"entity_ids":["a"],"metric":"revenue","date_range":{"from":"2025-07-01T00:00:00Z","to":"2025-07-31T00:00:00Z"},"granularity":"hourly"}]}`},
		{name: "inverted range", body: `{"specs":[{"entity_ids":["a"],"metric":"revenue","date_range":{"from":"2025-07-31T00:00:00Z","to":"2025-07-01T00:00:00Z"},"granularity":"daily"}]}`},
		{name: "negative top n", body: `{"specs":[{"entity_ids":["a"],"metric":"revenue","date_range":{"from":"2025-07-01T00:00:00Z","to":"2025-07-31T00:00:00Z"},"granularity":"daily"}],"top_n":[-1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubReportService{}
			h, _ := newReportHandler(t, stub)

			rec := postJSON(t, h.Routes(), "/concentration", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeJSONBody(t, rec)
			assert.Equal(t, apierrors.TypeValidation, body["type"])
			assert.Equal(t, "INVALID_REQUEST", body["error_code"])
			assert.Empty(t, stub.lastOpts.Specs, "service must not be called for a rejected body")
		})
	}
}

func TestRunConcentrationRunInProgress(t *testing.T) {
	stub := &stubReportService{runErr: services.ErrRunInProgress}
	h, _ := newReportHandler(t, stub)

	rec := postJSON(t, h.Routes(), "/concentration", concentrationBody(t, "", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, apierrors.TypeConflict, body["type"])
	assert.Equal(t, "RUN_IN_PROGRESS", body["error_code"])
}

func TestRunConcentrationUnknownGrouping(t *testing.T) {
	stub := &stubReportService{
		runErr: fmt.Errorf("%w: unknown grouping %q", services.ErrInvalidInput, "region"),
	}
	h, _ := newReportHandler(t, stub)

	rec := postJSON(t, h.Routes(), "/concentration", concentrationBody(t, "region", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
}

func TestRunConcentrationInternalError(t *testing.T) {
	stub := &stubReportService{runErr: errors.New("pipeline exploded")}
	h, records := newReportHandler(t, stub)

	rec := postJSON(t, h.Routes(), "/concentration", concentrationBody(t, "", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeJSONBody(t, rec)
	assert.Equal(t, "/errors/internal-error", body["type"])
	assert.Equal(t, "INTERNAL_ERROR", body["error_code"])
	assert.True(t, records.ContainsMessage("concentration run failed"))
}

func TestGetLatest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubReportService{
			record: &services.RunRecord{
				Result:     &pipeline.RunResult{RowCount: 3},
				FinishedAt: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
			},
		}
		h, _ := newReportHandler(t, stub)

		rec := getPath(t, h.Routes(), "/latest")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		result, ok := data["result"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(3), result["row_count"])
	})

	t.Run("no runs yet", func(t *testing.T) {
		stub := &stubReportService{latestErr: services.ErrNoRuns}
		h, _ := newReportHandler(t, stub)

		rec := getPath(t, h.Routes(), "/latest")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, apierrors.TypeReportNotFound, body["type"])
		assert.Equal(t, "REPORT_NOT_FOUND", body["error_code"])
	})
}

func TestGetDeltas(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubReportService{
			deltas: []aggregate.GroupDelta{{Key: "all"}},
		}
		h, _ := newReportHandler(t, stub)

		rec := getPath(t, h.Routes(), "/deltas")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("no runs yet", func(t *testing.T) {
		stub := &stubReportService{deltasErr: services.ErrNoRuns}
		h, _ := newReportHandler(t, stub)

		rec := getPath(t, h.Routes(), "/deltas")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "REPORT_NOT_FOUND", body["error_code"])
	})

	t.Run("single run", func(t *testing.T) {
		stub := &stubReportService{deltasErr: services.ErrNoPriorRun}
		h, _ := newReportHandler(t, stub)

		rec := getPath(t, h.Routes(), "/deltas")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeJSONBody(t, rec)
		assert.Equal(t, "NO_PRIOR_RUN", body["error_code"])
		assert.Equal(t, apierrors.TypeNotFound, body["type"])
	})
}
