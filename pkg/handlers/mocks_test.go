package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/classifier"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

// mockErrorLogService is a configurable in-memory ErrorLogService.
type mockErrorLogService struct {
	logs        map[int64]*models.ErrorLog
	err         error
	lastFilters models.ErrorLogFilters
}

func newMockErrorLogService(logs ...*models.ErrorLog) *mockErrorLogService {
	m := &mockErrorLogService{logs: make(map[int64]*models.ErrorLog)}
	for _, log := range logs {
		m.logs[log.ID] = log
	}
	return m
}

func (m *mockErrorLogService) List(ctx context.Context, filters models.ErrorLogFilters) ([]*services.DecoratedErrorLog, int64, error) {
	m.lastFilters = filters
	if m.err != nil {
		return nil, 0, m.err
	}
	if filters.Status != "" && !models.ValidErrorStatus(filters.Status) {
		return nil, 0, apperrors.ErrInvalidStatus
	}
	out := make([]*services.DecoratedErrorLog, 0, len(m.logs))
	for _, log := range m.logs {
		out = append(out, m.Decorate(log))
	}
	return out, int64(len(out)), nil
}

func (m *mockErrorLogService) Get(ctx context.Context, id int64) (*services.DecoratedErrorLog, error) {
	if m.err != nil {
		return nil, m.err
	}
	log, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return m.Decorate(log), nil
}

func (m *mockErrorLogService) GetByShareToken(ctx context.Context, token string) (*services.DecoratedErrorLog, error) {
	for _, log := range m.logs {
		if log.ShareToken == token {
			return m.Decorate(log), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockErrorLogService) UpdateStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidErrorStatus(status) {
		return apperrors.ErrInvalidStatus
	}
	log, ok := m.logs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	log.Status = status
	return nil
}

func (m *mockErrorLogService) Purge(ctx context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := int64(len(m.logs))
	m.logs = make(map[int64]*models.ErrorLog)
	return n, nil
}

func (m *mockErrorLogService) Stats(ctx context.Context) (*models.ErrorLogStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	stats := &models.ErrorLogStats{
		Total:      int64(len(m.logs)),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, log := range m.logs {
		stats.ByStatus[log.Status]++
		stats.BySeverity[log.Severity]++
	}
	return stats, nil
}

func (m *mockErrorLogService) Classify(message string, flags classifier.RequestFlags) classifier.Result {
	return classifier.Unclassified()
}

func (m *mockErrorLogService) Decorate(log *models.ErrorLog) *services.DecoratedErrorLog {
	return &services.DecoratedErrorLog{ErrorLog: log, Classification: classifier.Unclassified()}
}

func sampleLog(id int64) *models.ErrorLog {
	return &models.ErrorLog{
		ID:              id,
		ErrorType:       "Warning",
		Severity:        "Warning",
		Message:         "Undefined variable $post",
		FilePath:        "/var/www/wp-content/themes/demo/single.php",
		LineNumber:      14,
		ShareToken:      "share-" + string(rune('a'+id)),
		OccurrenceCount: 1,
		Status:          models.ErrorStatusOpen,
		LastSeen:        time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

// mockCapturer records the events and request scopes it sees.
type mockCapturer struct {
	mu     sync.Mutex
	events []*models.ErrorEvent
	infos  []capture.RequestInfo
	result capture.Result
}

func (m *mockCapturer) Capture(ctx context.Context, ev *models.ErrorEvent) capture.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if scope, ok := capture.ScopeFromContext(ctx); ok {
		m.infos = append(m.infos, scope.Info())
	}
	if m.result.Decision == "" {
		return capture.Result{Decision: capture.Admitted, Outcome: models.OutcomeInserted}
	}
	return m.result
}

type mockIngestObserver struct {
	events   []int
	accepted []bool
}

func (m *mockIngestObserver) ObserveIngest(events int, accepted bool) {
	m.events = append(m.events, events)
	m.accepted = append(m.accepted, accepted)
}

type mockAnalyzer struct {
	result *services.AnalysisResult
	err    error
}

func (m *mockAnalyzer) Analyze(ctx context.Context, id int64) (*services.AnalysisResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.AnalysisResult{LogID: id, Provider: "gemini", Model: "gemini-2.0-flash", Analysis: "Define $post before use."}, nil
}
