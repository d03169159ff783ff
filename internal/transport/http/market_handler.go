package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "gamepulse/internal/errors"
	"gamepulse/internal/services"
)

// MarketHandler serves the read side of the latest run: groups, entities,
// and cache counters
type MarketHandler struct {
	service      ReportServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(service ReportServiceInterface, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "market_handler")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// RegisterRoutes registers the group, entity, and cache routes
func (h *MarketHandler) RegisterRoutes(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/", h.GetGroups)
		r.Route("/{key}", func(r chi.Router) {
			r.Use(h.GroupCtx)
			r.Get("/", h.GetGroup)
		})
	})

	r.Route("/entities", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/", h.GetEntities)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.EntityCtx)
			r.Get("/", h.GetEntity)
		})
	})

	r.Get("/cache/stats", h.GetCacheStats)
}

// GroupCtx middleware validates the group key parameter
func (h *MarketHandler) GroupCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("key", "Group key is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EntityCtx middleware validates the canonical id parameter
func (h *MarketHandler) EntityCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Canonical entity id is required"))
			return
		}
		if len(id) > 64 {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Invalid canonical id format"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetGroups handles GET /api/v1/groups
func (h *MarketHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Groups()
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
		"data":   groups,
		"count":  len(groups),
	})
}

// GetGroup handles GET /api/v1/groups/{key}
func (h *MarketHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	group, err := h.service.Group(key)
	if err != nil {
		h.logger.WarnContext(r.Context(), "group lookup failed",
			slog.String("key", key),
			slog.String("error", err.Error()))

		switch {
		case errors.Is(err, services.ErrNoRuns):
			h.errorHandler.HandleError(w, r, apierrors.ErrReportNotFound)
		case errors.Is(err, services.ErrGroupNotFound):
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"GROUP_NOT_FOUND",
				fmt.Sprintf("No group %q in the latest run", key),
			))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   group,
	})
}

// GetEntities handles GET /api/v1/entities
func (h *MarketHandler) GetEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.service.Entities()
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
		"data":   entities,
		"count":  len(entities),
	})
}

// GetEntity handles GET /api/v1/entities/{id}
func (h *MarketHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entity, owned, err := h.service.Entity(id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "entity lookup failed",
			slog.String("canonical_id", id),
			slog.String("error", err.Error()))

		switch {
		case errors.Is(err, services.ErrNoRuns):
			h.errorHandler.HandleError(w, r, apierrors.ErrReportNotFound)
		case errors.Is(err, services.ErrEntityNotFound):
			h.errorHandler.HandleError(w, r, apierrors.ErrEntityNotFound)
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"entity": entity,
			"series": owned,
		},
	})
}

// GetCacheStats handles GET /api/v1/cache/stats
func (h *MarketHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   h.service.CacheStats(),
	})
}
