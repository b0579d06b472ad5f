package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, reqBody, respBody string) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	rec := httptest.NewRecorder()
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(rec, req)

	assert.Equal(t, respBody, rec.Body.String(), "response passes through unchanged")
	return logs
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs successful tool call", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_error","arguments":{"id":7}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`)

		require.Equal(t, 2, logs.Len(), "request and response are logged")

		requestLog := logs.All()[0]
		assert.Equal(t, "MCP request", requestLog.Message)
		assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
		assert.Equal(t, "get_error", requestLog.ContextMap()["tool"])

		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response success", responseLog.Message)
		assert.Equal(t, "get_error", responseLog.ContextMap()["tool"])
	})

	t.Run("logs protocol errors", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"tool 'nope' not found"}}`)

		require.Equal(t, 2, logs.Len())
		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response error", responseLog.Message)
		assert.Equal(t, int64(-32602), responseLog.ContextMap()["error_code"])
	})

	t.Run("logs tool-level errors", func(t *testing.T) {
		logs := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_error","arguments":{"id":99}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"{\"code\":\"not_found\"}"}]}}`)

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "MCP tool error", logs.All()[1].Message)
		assert.Equal(t, "not_found", logs.All()[1].ContextMap()["code"])
	})

	t.Run("tolerates non-JSON bodies", func(t *testing.T) {
		logs := serveMCP(t, `not json`, `also not json`)

		messages := make([]string, 0, logs.Len())
		for _, entry := range logs.All() {
			messages = append(messages, entry.Message)
		}
		assert.Contains(t, messages, "Failed to parse MCP request JSON")
		assert.Contains(t, messages, "Failed to parse MCP response JSON")
	})

	t.Run("nil logger passes through", func(t *testing.T) {
		called := false
		handler := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
		assert.True(t, called)
	})
}

func TestSanitizeArguments(t *testing.T) {
	assert.Nil(t, sanitizeArguments(nil))

	args := map[string]any{
		"message":   strings.Repeat("x", 500),
		"api_key":   "sk-live-123",
		"is_admin":  true,
		"id":        float64(7),
		"connector": "postgres://user:hunter2@db/bugsneak",
	}
	got := sanitizeArguments(args)

	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, true, got["is_admin"])
	assert.Equal(t, float64(7), got["id"])
	assert.Len(t, got["message"], maxLoggedArgumentLength+len("..."))
	assert.NotContains(t, got["connector"], "hunter2")
	assert.Equal(t, "sk-live-123", args["api_key"], "input is not modified")
}
