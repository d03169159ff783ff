package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "gamepulse/internal/errors"
	"gamepulse/internal/middleware"
	"gamepulse/internal/services"
	"gamepulse/internal/source"
)

// ReportHandler handles concentration report runs and run-level reads
type ReportHandler struct {
	service      ReportServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a new report handler with RFC 7807 error handling
func NewReportHandler(service ReportServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	return &ReportHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "report_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/concentration", h.RunConcentration)
	r.Get("/latest", h.GetLatest)
	r.Get("/deltas", h.GetDeltas)

	return r
}

// ConcentrationRequest is the body of POST /api/v1/reports/concentration.
// GroupBy and TopN are optional and fall back to the server configuration.
type ConcentrationRequest struct {
	Specs   []source.QuerySpec `json:"specs"`
	GroupBy string             `json:"group_by,omitempty"`
	TopN    []int              `json:"top_n,omitempty"`
}

// Bind implements the render.Binder interface for request validation
func (cr *ConcentrationRequest) Bind(req *http.Request) error {
	if len(cr.Specs) == 0 {
		return errors.New("at least one query spec is required")
	}
	for i, spec := range cr.Specs {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("specs[%d]: %w", i, err)
		}
	}
	for _, n := range cr.TopN {
		if n <= 0 {
			return fmt.Errorf("top_n values must be positive, got %d", n)
		}
	}
	return nil
}

// RunConcentration handles POST /api/v1/reports/concentration. The run is
// synchronous; the response carries the full result of the finished run.
func (h *ReportHandler) RunConcentration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	data := &ConcentrationRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.WarnContext(ctx, "rejecting malformed concentration request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	h.logger.InfoContext(ctx, "starting concentration run",
		slog.String("request_id", reqID),
		slog.Int("specs", len(data.Specs)),
		slog.String("group_by", data.GroupBy))

	result, err := h.service.Run(ctx, services.RunOptions{
		Specs:   data.Specs,
		GroupBy: data.GroupBy,
		TopN:    data.TopN,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "concentration run failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		switch {
		case errors.Is(err, services.ErrRunInProgress):
			h.errorHandler.HandleError(w, r, apierrors.ErrRunRunning)
		case errors.Is(err, services.ErrInvalidInput):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("group_by", err.Error()))
		default:
			render.Render(w, r, apierrors.MapRunError(err, reqID))
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// GetLatest handles GET /api/v1/reports/latest
func (h *ReportHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Latest()
	if err != nil {
		if errors.Is(err, services.ErrNoRuns) {
			h.errorHandler.HandleError(w, r, apierrors.ErrReportNotFound)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   record,
	})
}

// GetDeltas handles GET /api/v1/reports/deltas
func (h *ReportHandler) GetDeltas(w http.ResponseWriter, r *http.Request) {
	deltas, err := h.service.Deltas()
	if err != nil {
		h.logger.WarnContext(r.Context(), "deltas unavailable",
			slog.String("error", err.Error()))

		switch {
		case errors.Is(err, services.ErrNoRuns):
			h.errorHandler.HandleError(w, r, apierrors.ErrReportNotFound)
		case errors.Is(err, services.ErrNoPriorRun):
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_PRIOR_RUN",
				"Only one run has completed; deltas need two",
			))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   deltas,
		"count":  len(deltas),
	})
}
