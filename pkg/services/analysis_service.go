package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/llm"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

const (
	analysisSystemPrompt = "You are a senior WordPress expert. Analyze PHP errors and provide concise explanations and fixes."
	analysisTemperature  = 0.2
	analysisMaxTokens    = 1024
	defaultAITimeout     = 30 * time.Second
)

// AnalysisResult is the AI deep dive for one error log.
type AnalysisResult struct {
	LogID     int64     `json:"log_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisObserver is told how each provider call went.
type AnalysisObserver interface {
	ObserveAnalysis(provider string, elapsed time.Duration, err error)
}

// AnalysisService asks the configured AI provider to explain a stored error.
type AnalysisService interface {
	// Analyze returns apperrors.ErrNotFound for unknown ids and a *llm.Error
	// for every provider-side failure.
	Analyze(ctx context.Context, id int64) (*AnalysisResult, error)
}

// AnalysisOption configures an AnalysisService.
type AnalysisOption func(*analysisService)

// WithAnalysisProvider replaces the provider built from config.
func WithAnalysisProvider(p llm.Provider) AnalysisOption {
	return func(s *analysisService) {
		s.provider = p
		s.providerErr = nil
	}
}

// WithAnalysisObserver reports provider calls to o.
func WithAnalysisObserver(o AnalysisObserver) AnalysisOption {
	return func(s *analysisService) { s.observer = o }
}

type analysisService struct {
	repo        repositories.ErrorLogRepository
	provider    llm.Provider
	providerErr error
	breaker     *llm.CircuitBreaker
	timeout     time.Duration
	observer    AnalysisObserver
	logger      *zap.Logger
}

// NewAnalysisService creates an AnalysisService for cfg. When AI is disabled or
// has no key, every call returns the corresponding *llm.Error.
func NewAnalysisService(
	repo repositories.ErrorLogRepository,
	cfg config.AIConfig,
	logger *zap.Logger,
	opts ...AnalysisOption,
) AnalysisService {
	s := &analysisService{
		repo:    repo,
		breaker: llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		timeout: cfg.Timeout,
		logger:  logger.Named("analysis-service"),
	}
	s.provider, s.providerErr = llm.NewProvider(cfg, logger)
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = defaultAITimeout
	}
	return s
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) Analyze(ctx context.Context, id int64) (*AnalysisResult, error) {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.provider == nil {
		if s.providerErr == nil {
			return nil, llm.NewError(llm.ErrorTypeDisabled, "AI analysis is disabled", false, nil)
		}
		return nil, s.providerErr
	}

	if err := s.breaker.Allow(); err != nil {
		s.logger.Warn("AI provider circuit open", zap.String("provider", s.provider.Name()))
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.provider.Complete(callCtx, llm.CompletionRequest{
		System:      analysisSystemPrompt,
		Prompt:      BuildAnalysisPrompt(log),
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		err = llm.ClassifyError(err)
	}
	s.breaker.Record(err)
	if s.observer != nil {
		s.observer.ObserveAnalysis(s.provider.Name(), elapsed, err)
	}
	if err != nil {
		s.logger.Error("AI analysis failed",
			zap.Int64("id", id),
			zap.String("provider", s.provider.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	return &AnalysisResult{
		LogID:     id,
		Provider:  s.provider.Name(),
		Model:     s.provider.Model(),
		Analysis:  strings.TrimSpace(text),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// BuildAnalysisPrompt renders the error, its location and its code window.
// The target line is prefixed with ">>> ".
func BuildAnalysisPrompt(log *models.ErrorLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ERROR: %s\nTYPE: %s\nFILE: %s (Line %d)\n\n", log.Message, log.ErrorType, log.FilePath, log.LineNumber)

	if snippet := log.CodeSnippet; snippet != nil && len(snippet.Lines) > 0 {
		lines := make([]int, 0, len(snippet.Lines))
		for n := range snippet.Lines {
			lines = append(lines, n)
		}
		sort.Ints(lines)

		b.WriteString("CODE CONTEXT:\n")
		for _, n := range lines {
			mark := "    "
			if n == snippet.Target {
				mark = ">>> "
			}
			fmt.Fprintf(&b, "%s%d: %s\n", mark, n, snippet.Lines[n])
		}
		b.WriteString("\n")
	}

	b.WriteString("Analyze why this happened and provide a specific fix suggestion. Keep it concise and technical.")
	return b.String()
}
