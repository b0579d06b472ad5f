// Package llm talks to the AI providers used for the optional deep dive on a
// stored error log.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider produces a text completion for one prompt.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	Model() string
}

// NewProvider builds the provider selected in cfg. A disabled config or a
// missing key yields a structured Error so callers can report it directly.
func NewProvider(cfg config.AIConfig, logger *zap.Logger) (Provider, error) {
	if !cfg.Enabled {
		return nil, NewError(ErrorTypeDisabled, "AI analysis is disabled", false, nil)
	}

	key := strings.TrimSpace(cfg.ActiveKey())
	if key == "" {
		err := NewError(ErrorTypeAuth, fmt.Sprintf("no API key configured for %s", cfg.Provider), false, nil)
		err.Provider = cfg.Provider
		return nil, err
	}

	switch cfg.Provider {
	case config.ProviderGemini, "":
		return newOpenAIProvider(config.ProviderGemini, cfg.GeminiBaseURL, key, cfg.GeminiModel, logger), nil
	case config.ProviderOpenAI:
		return newOpenAIProvider(config.ProviderOpenAI, cfg.OpenAIBaseURL, key, cfg.OpenAIModel, logger), nil
	case config.ProviderAnthropic:
		return newAnthropicProvider(cfg.AnthropicBaseURL, key, cfg.AnthropicModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// annotate fills provider and model on a classified error.
func annotate(err error, provider, model string) *Error {
	llmErr := ClassifyError(err)
	if llmErr.Provider == "" {
		llmErr.Provider = provider
	}
	if llmErr.Model == "" {
		llmErr.Model = model
	}
	return llmErr
}
