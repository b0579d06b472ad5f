package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

func TestNewProvider_Disabled(t *testing.T) {
	_, err := NewProvider(config.AIConfig{Enabled: false}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeDisabled, GetErrorType(err))
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(config.AIConfig{Enabled: true, Provider: config.ProviderOpenAI}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestNewProvider_SelectsProvider(t *testing.T) {
	cfg := config.AIConfig{
		Enabled:        true,
		GeminiModel:    "gemini-2.0-flash",
		OpenAIModel:    "gpt-4o-mini",
		AnthropicModel: "claude-3-5-haiku-latest",
		GeminiKey:      "g",
		OpenAIKey:      "o",
		AnthropicKey:   "a",
	}

	for _, tc := range []struct{ provider, model string }{
		{config.ProviderGemini, "gemini-2.0-flash"},
		{config.ProviderOpenAI, "gpt-4o-mini"},
		{config.ProviderAnthropic, "claude-3-5-haiku-latest"},
	} {
		cfg.Provider = tc.provider
		p, err := NewProvider(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, tc.provider, p.Name())
		assert.Equal(t, tc.model, p.Model())
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Check the plugin."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`))
	}))
	defer server.Close()

	p := newOpenAIProvider(config.ProviderOpenAI, server.URL, "test-key", "gpt-4o-mini", zap.NewNop())
	text, err := p.Complete(context.Background(), CompletionRequest{
		System:      "You are a debugger.",
		Prompt:      "Why?",
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "Check the plugin.", text)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 1024, got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIProvider_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p := newOpenAIProvider(config.ProviderOpenAI, server.URL, "bad", "gpt-4o-mini", zap.NewNop())
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeAuth, llmErr.Type)
	assert.Equal(t, config.ProviderOpenAI, llmErr.Provider)
}

func TestOpenAIProvider_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer server.Close()

	p := newOpenAIProvider(config.ProviderGemini, server.URL, "k", "gemini-2.0-flash", zap.NewNop())
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.Equal(t, ErrorTypeEmpty, GetErrorType(err))
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"Raise memory_limit."}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":4}}`))
	}))
	defer server.Close()

	p := newAnthropicProvider(server.URL, "test-key", "claude-3-5-haiku-latest", zap.NewNop())
	text, err := p.Complete(context.Background(), CompletionRequest{
		System:    "You are a debugger.",
		Prompt:    "Why?",
		MaxTokens: 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "Raise memory_limit.", text)
	assert.Equal(t, "You are a debugger.", got["system"])
	assert.EqualValues(t, 1024, got["max_tokens"])
}
