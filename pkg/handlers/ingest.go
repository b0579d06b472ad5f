package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// maxIngestBodyBytes bounds one ingest request body.
const maxIngestBodyBytes = 4 << 20

// EventCapturer runs one event through the capture pipeline.
type EventCapturer interface {
	Capture(ctx context.Context, ev *models.ErrorEvent) capture.Result
}

// IngestObserver is told about every ingest batch.
type IngestObserver interface {
	ObserveIngest(events int, accepted bool)
}

// IngestHandler accepts batches of error events from external agents.
type IngestHandler struct {
	capturer EventCapturer
	cfg      config.IngestConfig
	observer IngestObserver
	logger   *zap.Logger
}

// NewIngestHandler creates a new IngestHandler. observer may be nil.
func NewIngestHandler(capturer EventCapturer, cfg config.IngestConfig, observer IngestObserver, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		capturer: capturer,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}
}

// RegisterRoutes registers the ingest route. wrap is applied to the handler,
// typically a rate limiter.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	var handler http.Handler = http.HandlerFunc(h.Ingest)
	if wrap != nil {
		handler = wrap(handler)
	}
	mux.Handle("POST /api/ingest", handler)
}

// ingestEvent is an event as posted by an agent. Agents forwarding PHP errors
// may send errno instead of type and level.
type ingestEvent struct {
	models.ErrorEvent
	Errno int `json:"errno,omitempty"`
}

// ingestRequest is one batch: every event shares the request's capture scope.
type ingestRequest struct {
	Request capture.RequestInfo `json:"request"`
	Events  []ingestEvent       `json:"events"`
}

type ingestResponse struct {
	RequestID string           `json:"request_id"`
	Received  int              `json:"received"`
	Admitted  int              `json:"admitted"`
	Dropped   int              `json:"dropped"`
	Results   []capture.Result `json:"results"`
}

// Ingest handles POST /api/ingest
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.observe(0, false)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large")
			return
		}
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if len(req.Events) == 0 {
		h.observe(0, false)
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "events must not be empty")
		return
	}
	if h.cfg.MaxBatch > 0 && len(req.Events) > h.cfg.MaxBatch {
		h.observe(len(req.Events), false)
		ErrorResponse(w, http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Sprintf("a batch may hold at most %d events", h.cfg.MaxBatch))
		return
	}

	if !h.cfg.TrustAgentPrivilege {
		req.Request.IsAdmin = false
		req.Request.IsPrivileged = false
	}

	ctx, done := capture.NewRequestContext(r.Context(), req.Request)
	defer done()

	resp := ingestResponse{
		Received: len(req.Events),
		Results:  make([]capture.Result, 0, len(req.Events)),
	}
	if scope, ok := capture.ScopeFromContext(ctx); ok {
		resp.RequestID = scope.Info().ID
	}

	for i := range req.Events {
		ev := req.Events[i].toEvent()
		result := h.capturer.Capture(ctx, ev)
		if result.Decision.Admitted() {
			resp.Admitted++
		} else {
			resp.Dropped++
		}
		resp.Results = append(resp.Results, result)
	}

	h.observe(len(req.Events), true)
	h.logger.Debug("Ingested event batch",
		zap.String("request_id", resp.RequestID),
		zap.Int("received", resp.Received),
		zap.Int("admitted", resp.Admitted))

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write ingest response", zap.Error(err))
	}
}

func (h *IngestHandler) observe(events int, accepted bool) {
	if h.observer != nil {
		h.observer.ObserveIngest(events, accepted)
	}
}

// toEvent normalizes the level and fills type and level from errno when the
// agent left them out. An unknown level is cleared so it is derived from errno
// or, failing that, from the type.
func (e *ingestEvent) toEvent() *models.ErrorEvent {
	ev := e.ErrorEvent
	ev.Remote = true
	level, _ := models.ParseLevel(string(ev.Level))
	ev.Level = level
	if e.Errno != 0 {
		if ev.Type == "" {
			ev.Type = models.TypeNameForErrno(e.Errno)
		}
		if ev.Level == "" {
			ev.Level = models.LevelForErrno(e.Errno)
		}
	}
	if ev.Level == "" && ev.Type != "" {
		ev.Level = models.LevelForType(ev.Type)
	}
	return &ev
}
