package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

// ErrorLogHandler serves the error log query and management API.
type ErrorLogHandler struct {
	service services.ErrorLogService
	logger  *zap.Logger
}

// NewErrorLogHandler creates a new ErrorLogHandler.
func NewErrorLogHandler(service services.ErrorLogService, logger *zap.Logger) *ErrorLogHandler {
	return &ErrorLogHandler{service: service, logger: logger}
}

// RegisterRoutes registers the error log routes on the given mux.
func (h *ErrorLogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/logs", h.List)
	mux.HandleFunc("GET /api/logs/{id}", h.Get)
	mux.HandleFunc("POST /api/logs/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/clear", h.Purge)
	mux.HandleFunc("POST /api/purge", h.Purge)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/share/{token}", h.GetShared)
}

type listErrorLogsResponse struct {
	Logs   []*services.DecoratedErrorLog `json:"logs"`
	Total  int64                         `json:"total"`
	Limit  int                           `json:"limit"`
	Offset int                           `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type purgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// List handles GET /api/logs?limit=&offset=&status=
func (h *ErrorLogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", models.DefaultListLimit)
	if !ok {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "offset must be a non-negative integer")
		return
	}

	filters := models.ErrorLogFilters{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	}.Normalize()

	logs, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list error logs")
		return
	}

	resp := listErrorLogsResponse{Logs: logs, Total: total, Limit: filters.Limit, Offset: filters.Offset}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write error log list", zap.Error(err))
	}
}

// Get handles GET /api/logs/{id}
func (h *ErrorLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseLogID(w, r, h.logger)
	if !ok {
		return
	}

	log, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get error log")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: log}); err != nil {
		h.logger.Error("Failed to write error log", zap.Error(err))
	}
}

// GetShared handles GET /api/share/{token}
func (h *ErrorLogHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_token", "Share token is required")
		return
	}

	log, err := h.service.GetByShareToken(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get shared error log")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: log}); err != nil {
		h.logger.Error("Failed to write shared error log", zap.Error(err))
	}
}

// UpdateStatus handles POST /api/logs/{id}/status
func (h *ErrorLogHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseLogID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.writeServiceError(w, err, "Failed to update error log status")
		return
	}

	h.logger.Info("Error log status updated", zap.Int64("id", id), zap.String("status", req.Status))
	resp := ApiResponse{Success: true, Data: map[string]any{"id": id, "status": req.Status}}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write status response", zap.Error(err))
	}
}

// Purge handles POST /api/clear and POST /api/purge. Both delete every record.
func (h *ErrorLogHandler) Purge(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Purge(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to delete error logs")
		return
	}

	h.logger.Info("Error logs purged", zap.Int64("deleted", deleted), zap.String("path", r.URL.Path))
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: purgeResponse{Deleted: deleted}}); err != nil {
		h.logger.Error("Failed to write purge response", zap.Error(err))
	}
}

// Stats handles GET /api/stats
func (h *ErrorLogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to read error log stats")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: stats}); err != nil {
		h.logger.Error("Failed to write stats response", zap.Error(err))
	}
}

// writeServiceError maps domain errors to 4xx responses and logs everything else as 500.
func (h *ErrorLogHandler) writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		ErrorResponse(w, http.StatusNotFound, "not_found", "Error log not found")
	case errors.Is(err, apperrors.ErrInvalidStatus):
		ErrorResponse(w, http.StatusBadRequest, "invalid_status", "status must be open, resolved or ignored")
	default:
		h.logger.Error(message, zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", message)
	}
}
