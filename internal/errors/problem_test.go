package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/concentration"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/source"
)

func testSpec() source.QuerySpec {
	return source.QuerySpec{
		EntityIDs: []string{"id-a"},
		Metric:    source.MetricRevenue,
		Range: source.DateRange{
			From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		},
		Granularity: source.GranularityDaily,
	}
}

func TestProblemDetailsMarshalJSON(t *testing.T) {
	pd := NewProblemDetails(
		http.StatusBadGateway,
		TypeUpstreamFetch,
		"Upstream Fetch Failed",
		"provider unreachable",
		"/api/v1/reports",
	).WithExtension("trace_id", "abc123").
		WithExtension("retryable", true)

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, TypeUpstreamFetch, body["type"])
	assert.Equal(t, "Upstream Fetch Failed", body["title"])
	assert.Equal(t, float64(http.StatusBadGateway), body["status"])
	assert.Equal(t, "provider unreachable", body["detail"])
	assert.Equal(t, "abc123", body["trace_id"])
	assert.Equal(t, true, body["retryable"])
}

func TestProblemDetailsMarshalOmitsEmptyDetail(t *testing.T) {
	pd := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))

	_, hasDetail := body["detail"]
	assert.False(t, hasDetail)
	_, hasInstance := body["instance"]
	assert.False(t, hasInstance)
}

func TestMapRunError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "api error keeps its status",
			err:        ErrReportNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   "/errors/REPORT_NOT_FOUND",
		},
		{
			name:       "validation stage error",
			err:        pipeline.NewValidationError(pipeline.StageFetch, "spec 0: metric is required"),
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/query/invalid",
		},
		{
			name:       "fetch stage error",
			err:        pipeline.NewFetchError("v1:abcd", assert.AnError),
			wantStatus: http.StatusBadGateway,
			wantType:   "/errors/source/fetch-failed",
		},
		{
			name:       "cancelled run",
			err:        pipeline.NewCancellationError(pipeline.StageFetch),
			wantStatus: http.StatusGatewayTimeout,
			wantType:   "/errors/run/cancelled",
		},
		{
			name:       "fetch failure with no stale fallback",
			err:        &fetchcache.FetchFailure{Spec: testSpec(), Cause: assert.AnError},
			wantStatus: http.StatusBadGateway,
			wantType:   "/errors/source/fetch-failed",
		},
		{
			name:       "insufficient data",
			err:        fmt.Errorf("measuring market: %w", concentration.ErrInsufficientData),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/metrics/insufficient-data",
		},
		{
			name:       "unknown error",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantType:   "/errors/internal-error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := MapRunError(tt.err, "trace-1")

			pd, ok := renderer.(*ProblemDetails)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantType, pd.Type)
			assert.Equal(t, "trace-1", pd.Extensions["trace_id"])
		})
	}
}

func TestMapRunErrorFetchFailureCarriesQueryKey(t *testing.T) {
	spec := testSpec()
	renderer := MapRunError(&fetchcache.FetchFailure{Spec: spec, Cause: assert.AnError}, "trace-2")

	pd, ok := renderer.(*ProblemDetails)
	require.True(t, ok)
	assert.Equal(t, spec.Key(), pd.Extensions["query_key"])
}

func TestMapRunErrorStageExtension(t *testing.T) {
	renderer := MapRunError(pipeline.NewValidationError(pipeline.StageFetch, "bad spec"), "trace-3")

	pd, ok := renderer.(*ProblemDetails)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageFetch, pd.Extensions["stage"])
}
