package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/llm"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

// Analyzer runs the AI deep dive for one error log.
type Analyzer interface {
	Analyze(ctx context.Context, id int64) (*services.AnalysisResult, error)
}

// AnalyzeHandler serves the AI deep dive endpoint.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewAnalyzeHandler creates a new AnalyzeHandler.
func NewAnalyzeHandler(analyzer Analyzer, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

// RegisterRoutes registers the analysis route on the given mux.
func (h *AnalyzeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze/{id}", h.Analyze)
}

// Analyze handles POST /api/analyze/{id}
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseLogID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Error log not found")
			return
		}

		code := llm.ErrorCode(err)
		status := analysisStatus(code)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("AI analysis failed",
				zap.Int64("id", id),
				zap.String("code", code),
				zap.Error(err))
		}
		ErrorResponse(w, status, code, analysisMessage(err))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write analysis response", zap.Error(err))
	}
}

// analysisStatus maps an AI error code to an HTTP status.
func analysisStatus(code string) int {
	switch code {
	case "ai_disabled", "ai_missing_key":
		return http.StatusServiceUnavailable
	case "ai_network_error":
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func analysisMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.Message != "" {
		return llmErr.Message
	}
	return "AI analysis failed"
}
