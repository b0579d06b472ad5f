package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/models"
)

func newTestLog(message string) *models.ErrorLog {
	return &models.ErrorLog{
		ErrorType:  "Warning",
		Severity:   "Warning",
		Message:    message,
		FilePath:   "/var/www/wp-content/plugins/demo/demo.php",
		LineNumber: 12,
		ErrorHash:  models.Fingerprint(message, "/var/www/wp-content/plugins/demo/demo.php", 12),
	}
}

func newTestGroupingStore(repo *mockErrorLogRepo, maxRows int) *GroupingStore {
	return NewGroupingStore(repo, NewCapacityGovernor(repo, maxRows), zap.NewNop())
}

func TestGroupingStore_InsertThenGroup(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 0)
	ctx := context.Background()

	assert.Equal(t, models.OutcomeInserted, store.Record(ctx, newTestLog("Undefined index: foo")))
	assert.Equal(t, models.OutcomeGrouped, store.Record(ctx, newTestLog("Undefined index: foo")))
	assert.Equal(t, models.OutcomeGrouped, store.Record(ctx, newTestLog("Undefined index: foo")))

	count, _ := repo.Count(ctx)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.OccurrenceCount)
	assert.Equal(t, models.ErrorStatusOpen, got.Status)
	assert.False(t, got.LastSeen.Before(got.CreatedAt))
}

func TestGroupingStore_ComputesMissingHash(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 0)

	log := newTestLog("no hash")
	log.ErrorHash = ""
	require.Equal(t, models.OutcomeInserted, store.Record(context.Background(), log))
	assert.Equal(t, models.Fingerprint("no hash", log.FilePath, log.LineNumber), log.ErrorHash)
}

func TestGroupingStore_ConcurrentSameFingerprint(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 0)
	ctx := context.Background()

	const events = 5000
	var inserted, grouped atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch store.Record(ctx, newTestLog("hot path")) {
			case models.OutcomeInserted:
				inserted.Add(1)
			case models.OutcomeGrouped:
				grouped.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), inserted.Load())
	assert.Equal(t, int64(events-1), grouped.Load())

	logs, total, err := repo.List(ctx, models.ErrorLogFilters{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, int64(events), logs[0].OccurrenceCount)
}

func TestGroupingStore_DistinctFingerprints(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Record(ctx, newTestLog(fmt.Sprintf("distinct %d", i)))
		}(i)
	}
	wg.Wait()

	count, _ := repo.Count(ctx)
	assert.Equal(t, int64(50), count)
}

func TestGroupingStore_CapacityLimit(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 10)
	ctx := context.Background()

	var skipped int
	for i := 0; i < 25; i++ {
		if store.Record(ctx, newTestLog(fmt.Sprintf("burst %d", i))) == models.OutcomeSkipped {
			skipped++
		}
	}

	count, _ := repo.Count(ctx)
	assert.Equal(t, int64(10), count)
	assert.Equal(t, 15, skipped)

	// Recurrences of stored groups are still counted at capacity.
	assert.Equal(t, models.OutcomeGrouped, store.Record(ctx, newTestLog("burst 0")))
}

func TestGroupingStore_CapacityMonotonic(t *testing.T) {
	repo := newMockErrorLogRepo()
	store := newTestGroupingStore(repo, 5)
	ctx := context.Background()

	var previous int64
	for i := 0; i < 20; i++ {
		store.Record(ctx, newTestLog(fmt.Sprintf("grow %d", i)))
		count, _ := repo.Count(ctx)
		assert.GreaterOrEqual(t, count, previous)
		assert.LessOrEqual(t, count, int64(5))
		previous = count
	}
}

// racingRepo simulates another writer inserting the same fingerprint between
// the failed increment and our insert.
type racingRepo struct {
	*mockErrorLogRepo
}

func (r *racingRepo) Insert(ctx context.Context, log *models.ErrorLog) error {
	other := *log
	_ = r.mockErrorLogRepo.Insert(ctx, &other)
	return apperrors.ErrConflict
}

func TestGroupingStore_InsertConflictFallsBackToIncrement(t *testing.T) {
	repo := &racingRepo{newMockErrorLogRepo()}
	store := NewGroupingStore(repo, NewCapacityGovernor(repo, 0), zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, models.OutcomeGrouped, store.Record(ctx, newTestLog("raced")))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.OccurrenceCount)
}

func TestGroupingStore_StorageFailures(t *testing.T) {
	ctx := context.Background()

	core, logs := observer.New(zapcore.ErrorLevel)
	repo := newMockErrorLogRepo()
	repo.incrementErr = errors.New("connection refused password=hunter2")
	store := NewGroupingStore(repo, NewCapacityGovernor(repo, 0), zap.New(core))

	assert.Equal(t, models.OutcomeError, store.Record(ctx, newTestLog("x")))
	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap()["error"], "hunter2")

	repo.incrementErr = nil
	repo.insertErr = errors.New("disk full")
	assert.Equal(t, models.OutcomeError, store.Record(ctx, newTestLog("y")))

	repo.insertErr = nil
	repo.countErr = errors.New("timeout")
	store = NewGroupingStore(repo, NewCapacityGovernor(repo, 10), zap.NewNop())
	assert.Equal(t, models.OutcomeError, store.Record(ctx, newTestLog("z")))
}

type panickingRepo struct {
	*mockErrorLogRepo
}

func (p *panickingRepo) IncrementByHash(context.Context, string, time.Time) (bool, error) {
	panic("driver bug")
}

func TestGroupingStore_RecoversPanics(t *testing.T) {
	repo := &panickingRepo{newMockErrorLogRepo()}
	store := NewGroupingStore(repo, NewCapacityGovernor(repo, 0), zap.NewNop())

	assert.NotPanics(t, func() {
		assert.Equal(t, models.OutcomeError, store.Record(context.Background(), newTestLog("boom")))
	})
	assert.Equal(t, models.OutcomeError, store.Record(context.Background(), nil))
}

func TestCapacityGovernor(t *testing.T) {
	ctx := context.Background()
	repo := newMockErrorLogRepo()

	ok, err := NewCapacityGovernor(repo, 0).AdmitInsert(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "zero means unlimited")

	repo.seed(newTestLog("one"))
	repo.seed(newTestLog("two"))

	ok, err = NewCapacityGovernor(repo, 3).AdmitInsert(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewCapacityGovernor(repo, 2).AdmitInsert(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "at budget refuses")

	repo.countErr = errors.New("boom")
	_, err = NewCapacityGovernor(repo, 2).AdmitInsert(ctx)
	assert.Error(t, err)
}
