package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

// mockErrorLogRepo implements repositories.ErrorLogRepository in memory.
// Every method takes the mutex, so increments are atomic like the SQL they stand in for.
type mockErrorLogRepo struct {
	mu     sync.Mutex
	nextID int64
	logs   map[int64]*models.ErrorLog

	incrementErr error
	insertErr    error
	countErr     error
	deleteErr    error
	trimErr      error

	deleteCutoff time.Time
	trimMax      int
}

func newMockErrorLogRepo() *mockErrorLogRepo {
	return &mockErrorLogRepo{logs: make(map[int64]*models.ErrorLog)}
}

var _ repositories.ErrorLogRepository = (*mockErrorLogRepo)(nil)

func (m *mockErrorLogRepo) byHash(hash string) *models.ErrorLog {
	for _, l := range m.logs {
		if l.ErrorHash == hash {
			return l
		}
	}
	return nil
}

func (m *mockErrorLogRepo) IncrementByHash(_ context.Context, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return false, m.incrementErr
	}
	l := m.byHash(hash)
	if l == nil {
		return false, nil
	}
	l.OccurrenceCount++
	l.LastSeen = at
	return true, nil
}

func (m *mockErrorLogRepo) Insert(_ context.Context, log *models.ErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.byHash(log.ErrorHash) != nil {
		return apperrors.ErrConflict
	}
	m.nextID++
	log.ID = m.nextID
	stored := *log
	m.logs[log.ID] = &stored
	return nil
}

func (m *mockErrorLogRepo) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.logs)), nil
}

func (m *mockErrorLogRepo) List(_ context.Context, filters models.ErrorLogFilters) ([]*models.ErrorLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.ErrorLog
	for _, l := range m.logs {
		if filters.Status != "" && l.Status != filters.Status {
			continue
		}
		c := *l
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].LastSeen.Equal(matched[j].LastSeen) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})

	total := int64(len(matched))
	if filters.Offset >= len(matched) {
		return []*models.ErrorLog{}, total, nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, total, nil
}

func (m *mockErrorLogRepo) GetByID(_ context.Context, id int64) (*models.ErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *l
	return &c, nil
}

func (m *mockErrorLogRepo) GetByShareToken(_ context.Context, token string) (*models.ErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.ShareToken == token {
			c := *l
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockErrorLogRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	if !models.ValidErrorStatus(status) {
		return apperrors.ErrInvalidStatus
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	l.Status = status
	return nil
}

func (m *mockErrorLogRepo) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.logs))
	m.logs = make(map[int64]*models.ErrorLog)
	return n, nil
}

func (m *mockErrorLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleteCutoff = cutoff
	var n int64
	for id, l := range m.logs {
		if l.LastSeen.Before(cutoff) {
			delete(m.logs, id)
			n++
		}
	}
	return n, nil
}

func (m *mockErrorLogRepo) TrimToMaxRows(_ context.Context, maxRows int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trimErr != nil {
		return 0, m.trimErr
	}
	m.trimMax = maxRows
	if maxRows <= 0 || len(m.logs) <= maxRows {
		return 0, nil
	}
	ids := make([]int64, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	excess := len(ids) - maxRows
	for _, id := range ids[:excess] {
		delete(m.logs, id)
	}
	return int64(excess), nil
}

func (m *mockErrorLogRepo) Stats(_ context.Context) (*models.ErrorLogStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.ErrorLogStats{
		Total:      int64(len(m.logs)),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, l := range m.logs {
		stats.ByStatus[l.Status]++
		stats.BySeverity[l.Severity]++
	}
	return stats, nil
}

// seed inserts a copy of log and returns its id.
func (m *mockErrorLogRepo) seed(log *models.ErrorLog) int64 {
	if log.ErrorHash == "" {
		log.ErrorHash = models.Fingerprint(log.Message, log.FilePath, log.LineNumber)
	}
	if log.Status == "" {
		log.Status = models.ErrorStatusOpen
	}
	if log.OccurrenceCount == 0 {
		log.OccurrenceCount = 1
	}
	if err := m.Insert(context.Background(), log); err != nil {
		panic(err)
	}
	return log.ID
}
