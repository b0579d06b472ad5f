package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIProvider serves OpenAI and any OpenAI-compatible endpoint, including
// Gemini's compatibility layer.
type openAIProvider struct {
	client *openai.Client
	name   string
	model  string
	logger *zap.Logger
}

func newOpenAIProvider(name, baseURL, apiKey, model string, logger *zap.Logger) *openAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &openAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		name:   name,
		model:  model,
		logger: logger.Named("llm").With(zap.String("provider", name)),
	}
}

func (p *openAIProvider) Name() string  { return p.name }
func (p *openAIProvider) Model() string { return p.model }

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.String("model", p.model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", annotate(err, p.name, p.model)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		llmErr := NewError(ErrorTypeEmpty, "AI provider returned no content", false, nil)
		llmErr.Provider = p.name
		llmErr.Model = p.model
		return "", llmErr
	}

	p.logger.Debug("LLM response",
		zap.String("model", p.model),
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}
