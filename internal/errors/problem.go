package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"gamepulse/internal/concentration"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/pipeline"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapRunError maps analytics run errors to HTTP problem details. The
// mapping is by error type, never by message text: validation failures are
// the caller's fault, upstream fetch failures are the source's, and
// insufficient data is a property of the data itself.
func MapRunError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/v1/reports#trace-%s", traceID)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return NewProblemDetails(
			apiErr.StatusCode,
			"/errors/"+apiErr.ErrorCode,
			http.StatusText(apiErr.StatusCode),
			apiErr.Message,
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", apiErr.ErrorCode)
	}

	var runErr *pipeline.PipelineError
	if errors.As(err, &runErr) {
		return mapPipelineError(runErr, traceID, instance)
	}

	var fetchErr *fetchcache.FetchFailure
	if errors.As(err, &fetchErr) {
		return NewProblemDetails(
			http.StatusBadGateway,
			"/errors/source/fetch-failed",
			"Upstream Fetch Failed",
			"The upstream data source could not be reached and no cached data covered the query.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UPSTREAM_FETCH_FAILED").
			WithExtension("query_key", fetchErr.Spec.Key())
	}

	if errors.Is(err, concentration.ErrInsufficientData) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/metrics/insufficient-data",
			"Insufficient Data",
			"Fewer than two positive observations remain; concentration is undefined for this selection.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INSUFFICIENT_DATA")
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal-error",
		"Internal Server Error",
		"An unexpected error occurred while processing your request.",
		instance,
	).WithExtension("trace_id", traceID).
		WithExtension("error_code", "INTERNAL_ERROR")
}

// mapPipelineError translates a typed stage error into a problem response.
func mapPipelineError(runErr *pipeline.PipelineError, traceID, instance string) *ProblemDetails {
	var pd *ProblemDetails

	switch runErr.Type {
	case pipeline.ErrorTypeValidation:
		pd = NewProblemDetails(
			http.StatusBadRequest,
			"/errors/query/invalid",
			"Invalid Query",
			runErr.Message,
			instance,
		).WithExtension("error_code", "INVALID_QUERY")

	case pipeline.ErrorTypeFetch:
		pd = NewProblemDetails(
			http.StatusBadGateway,
			"/errors/source/fetch-failed",
			"Upstream Fetch Failed",
			"The upstream data source failed while the report was running.",
			instance,
		).WithExtension("error_code", "UPSTREAM_FETCH_FAILED").
			WithExtension("retryable", runErr.Retryable)

	case pipeline.ErrorTypeTimeout:
		pd = NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/run/timeout",
			"Run Timeout",
			runErr.Message,
			instance,
		).WithExtension("error_code", "RUN_TIMEOUT")

	case pipeline.ErrorTypeCancellation:
		pd = NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/run/cancelled",
			"Run Cancelled",
			"The report run was cancelled before it completed.",
			instance,
		).WithExtension("error_code", "RUN_CANCELLED")

	default:
		pd = NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/run/failed",
			"Run Failed",
			runErr.Message,
			instance,
		).WithExtension("error_code", "RUN_FAILED")
	}

	pd.WithExtension("trace_id", traceID)
	if runErr.Stage != "" {
		pd.WithExtension("stage", runErr.Stage)
	}
	return pd
}
