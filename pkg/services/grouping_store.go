package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/logging"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

// GroupingStore folds error logs into one row per fingerprint.
// Recurrences bump the row's counter in SQL; only first occurrences insert.
type GroupingStore struct {
	repo     repositories.ErrorLogRepository
	governor CapacityGovernor
	logger   *zap.Logger
	now      func() time.Time
}

// NewGroupingStore creates a GroupingStore.
func NewGroupingStore(repo repositories.ErrorLogRepository, governor CapacityGovernor, logger *zap.Logger) *GroupingStore {
	return &GroupingStore{
		repo:     repo,
		governor: governor,
		logger:   logger.Named("grouping-store"),
		now:      time.Now,
	}
}

var _ capture.Store = (*GroupingStore)(nil)

// Record stores log and reports what happened. It never panics and never
// returns an error; failures are logged and reported as OutcomeError.
func (s *GroupingStore) Record(ctx context.Context, log *models.ErrorLog) (outcome models.RecordOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic while recording error log", zap.Any("panic", r))
			outcome = models.OutcomeError
		}
	}()

	if log == nil {
		return models.OutcomeError
	}
	if log.ErrorHash == "" {
		log.ErrorHash = models.Fingerprint(log.Message, log.FilePath, log.LineNumber)
	}

	now := s.now().UTC()

	grouped, err := s.repo.IncrementByHash(ctx, log.ErrorHash, now)
	if err != nil {
		return s.fail("increment", log, err)
	}
	if grouped {
		return models.OutcomeGrouped
	}

	admitted, err := s.governor.AdmitInsert(ctx)
	if err != nil {
		return s.fail("capacity check", log, err)
	}
	if !admitted {
		return models.OutcomeSkipped
	}

	log.OccurrenceCount = 1
	log.Status = models.ErrorStatusOpen
	log.CreatedAt = now
	log.LastSeen = now

	err = s.repo.Insert(ctx, log)
	switch {
	case err == nil:
		return models.OutcomeInserted
	case errors.Is(err, apperrors.ErrConflict):
		// Another writer inserted the same fingerprint between our increment and insert.
		grouped, err := s.repo.IncrementByHash(ctx, log.ErrorHash, now)
		if err != nil {
			return s.fail("increment after conflict", log, err)
		}
		if !grouped {
			return s.fail("increment after conflict", log, fmt.Errorf("row for %s vanished", log.ErrorHash))
		}
		return models.OutcomeGrouped
	default:
		return s.fail("insert", log, err)
	}
}

func (s *GroupingStore) fail(op string, log *models.ErrorLog, err error) models.RecordOutcome {
	s.logger.Error("Failed to record error log",
		zap.String("op", op),
		zap.String("hash", log.ErrorHash),
		zap.String("error", logging.SanitizeError(err)))
	return models.OutcomeError
}
