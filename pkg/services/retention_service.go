package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

// RetentionResult reports what a sweep removed.
type RetentionResult struct {
	Expired int64 `json:"expired"`
	Trimmed int64 `json:"trimmed"`
}

// Total returns the number of rows removed.
func (r RetentionResult) Total() int64 {
	return r.Expired + r.Trimmed
}

// RetentionService removes old and excess error logs.
type RetentionService interface {
	// Sweep deletes records not seen within the retention window, then trims the
	// table to max_rows by deleting the oldest ids.
	Sweep(ctx context.Context) (*RetentionResult, error)

	// RunScheduler starts running Sweep on the configured cron schedule and returns.
	// The scheduler stops when ctx is cancelled.
	// An empty schedule disables it.
	RunScheduler(ctx context.Context) error
}

// SweepObserver is told about every completed sweep.
type SweepObserver interface {
	ObserveSweep(result *RetentionResult)
}

// RetentionOption configures a RetentionService.
type RetentionOption func(*retentionService)

// WithSweepObserver reports sweep results to o.
func WithSweepObserver(o SweepObserver) RetentionOption {
	return func(s *retentionService) { s.observer = o }
}

type retentionService struct {
	repo      repositories.ErrorLogRepository
	retention config.RetentionConfig
	maxRows   int
	observer  SweepObserver
	logger    *zap.Logger
	now       func() time.Time
}

// NewRetentionService creates a RetentionService.
func NewRetentionService(
	repo repositories.ErrorLogRepository,
	retention config.RetentionConfig,
	maxRows int,
	logger *zap.Logger,
	opts ...RetentionOption,
) RetentionService {
	s := &retentionService{
		repo:      repo,
		retention: retention,
		maxRows:   maxRows,
		logger:    logger.Named("retention-service"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) Sweep(ctx context.Context) (*RetentionResult, error) {
	result := &RetentionResult{}

	if s.retention.Days > 0 {
		cutoff := s.now().AddDate(0, 0, -s.retention.Days)
		expired, err := s.repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("Failed to delete expired error logs", zap.Error(err))
			return result, fmt.Errorf("failed to delete expired error logs: %w", err)
		}
		result.Expired = expired
	}

	trimmed, err := s.repo.TrimToMaxRows(ctx, s.maxRows)
	if err != nil {
		s.logger.Error("Failed to trim error logs", zap.Int("max_rows", s.maxRows), zap.Error(err))
		return result, fmt.Errorf("failed to trim error logs: %w", err)
	}
	result.Trimmed = trimmed

	if s.observer != nil {
		s.observer.ObserveSweep(result)
	}
	if result.Total() > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.Int("retention_days", s.retention.Days),
			zap.Int("max_rows", s.maxRows),
			zap.Int64("expired", result.Expired),
			zap.Int64("trimmed", result.Trimmed))
	}

	return result, nil
}

func (s *retentionService) RunScheduler(ctx context.Context) error {
	spec := strings.TrimSpace(s.retention.CronSpec())
	if spec == "" {
		s.logger.Info("Retention scheduler disabled (cleanup_schedule not set)")
		return nil
	}

	schedule, err := config.ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("invalid cleanup_schedule %q: %w", spec, err)
	}

	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Retention sweep failed", zap.Error(err))
		}
	}))
	c.Start()

	s.logger.Info("Retention scheduler started",
		zap.String("schedule", spec),
		zap.Time("next_run", schedule.Next(s.now())),
		zap.Int("retention_days", s.retention.Days))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		s.logger.Info("Retention scheduler stopped")
	}()

	return nil
}
