package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/classifier"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

// Classifier scores an error message against the rule table.
type Classifier interface {
	Classify(message string, ctx classifier.Context) classifier.Result
}

// DecoratedErrorLog is a stored record with its read-time classification.
// Classification and spike data are computed per read and never stored.
type DecoratedErrorLog struct {
	*models.ErrorLog
	Classification classifier.Result `json:"classification"`
	IsSpike        bool              `json:"is_spike"`
	Velocity       float64           `json:"velocity"`
}

// ErrorLogService is the query and management surface over grouped error logs.
type ErrorLogService interface {
	List(ctx context.Context, filters models.ErrorLogFilters) ([]*DecoratedErrorLog, int64, error)
	Get(ctx context.Context, id int64) (*DecoratedErrorLog, error)
	GetByShareToken(ctx context.Context, token string) (*DecoratedErrorLog, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	// Purge deletes every record and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*models.ErrorLogStats, error)
	// Classify scores a free-standing message with the given request flags.
	Classify(message string, flags classifier.RequestFlags) classifier.Result
	Decorate(log *models.ErrorLog) *DecoratedErrorLog
}

type errorLogService struct {
	repo     repositories.ErrorLogRepository
	engine   Classifier
	contexts *classifier.ContextBuilder
	logger   *zap.Logger
}

// NewErrorLogService creates an ErrorLogService.
func NewErrorLogService(
	repo repositories.ErrorLogRepository,
	engine Classifier,
	contexts *classifier.ContextBuilder,
	logger *zap.Logger,
) ErrorLogService {
	return &errorLogService{
		repo:     repo,
		engine:   engine,
		contexts: contexts,
		logger:   logger.Named("error-log-service"),
	}
}

var _ ErrorLogService = (*errorLogService)(nil)

func (s *errorLogService) List(ctx context.Context, filters models.ErrorLogFilters) ([]*DecoratedErrorLog, int64, error) {
	if filters.Status != "" && !models.ValidErrorStatus(filters.Status) {
		return nil, 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, filters.Status)
	}

	logs, total, err := s.repo.List(ctx, filters.Normalize())
	if err != nil {
		return nil, 0, err
	}

	out := make([]*DecoratedErrorLog, 0, len(logs))
	for _, log := range logs {
		out = append(out, s.Decorate(log))
	}
	return out, total, nil
}

func (s *errorLogService) Get(ctx context.Context, id int64) (*DecoratedErrorLog, error) {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Decorate(log), nil
}

func (s *errorLogService) GetByShareToken(ctx context.Context, token string) (*DecoratedErrorLog, error) {
	log, err := s.repo.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Decorate(log), nil
}

func (s *errorLogService) UpdateStatus(ctx context.Context, id int64, status string) error {
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("Error log status updated", zap.Int64("id", id), zap.String("status", status))
	return nil
}

func (s *errorLogService) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.Purge(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Error logs purged", zap.Int64("deleted", n))
	return n, nil
}

func (s *errorLogService) Stats(ctx context.Context) (*models.ErrorLogStats, error) {
	return s.repo.Stats(ctx)
}

func (s *errorLogService) Classify(message string, flags classifier.RequestFlags) classifier.Result {
	return s.engine.Classify(message, s.contexts.Build(flags))
}

// Decorate classifies log using the request flags captured with it, its own
// versions as fallbacks, its culprit and its spike state.
func (s *errorLogService) Decorate(log *models.ErrorLog) *DecoratedErrorLog {
	isAdmin, isREST := log.RequestFlags()
	spike := classifier.DetectSpike(log.OccurrenceCount, log.CreatedAt, log.LastSeen)

	cctx := s.contexts.Build(classifier.RequestFlags{IsAdmin: isAdmin, IsREST: isREST}).
		WithFallbackVersions(log.RuntimeVersion, log.FrameworkVersion)
	cctx.Culprit = log.Culprit
	cctx.IsSpike = spike.IsSpike

	return &DecoratedErrorLog{
		ErrorLog:       log,
		Classification: s.engine.Classify(log.Message, cctx),
		IsSpike:        spike.IsSpike,
		Velocity:       spike.Velocity,
	}
}
