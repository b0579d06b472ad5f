package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

type anthropicProvider struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

func newAnthropicProvider(baseURL, apiKey, model string, logger *zap.Logger) *anthropicProvider {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}

	return &anthropicProvider{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
		logger: logger.Named("llm").With(zap.String("provider", config.ProviderAnthropic)),
	}
}

func (p *anthropicProvider) Name() string  { return config.ProviderAnthropic }
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	prompt := req.Prompt
	temperature := float32(req.Temperature)

	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.String("model", p.model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", annotate(err, config.ProviderAnthropic, p.model)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		llmErr := NewError(ErrorTypeEmpty, "AI provider returned no content", false, nil)
		llmErr.Provider = config.ProviderAnthropic
		llmErr.Model = p.model
		return "", llmErr
	}

	p.logger.Debug("LLM response",
		zap.String("model", p.model),
		zap.Duration("elapsed", elapsed),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))

	return text, nil
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}
