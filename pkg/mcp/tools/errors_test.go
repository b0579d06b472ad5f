package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/llm"
)

func decodeErrorResult(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()
	require.NotNil(t, result)
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	return resp
}

func TestNewErrorResult(t *testing.T) {
	resp := decodeErrorResult(t, NewErrorResult("not_found", "no error log with id 9"))
	assert.True(t, resp.Error)
	assert.Equal(t, "not_found", resp.Code)
	assert.Equal(t, "no error log with id 9", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestErrorResultFor(t *testing.T) {
	resp := decodeErrorResult(t, errorResultFor(fmt.Errorf("get: %w", apperrors.ErrNotFound), 9))
	assert.Equal(t, "not_found", resp.Code)

	resp = decodeErrorResult(t, errorResultFor(apperrors.ErrInvalidStatus, 9))
	assert.Equal(t, "invalid_status", resp.Code)
	assert.NotNil(t, resp.Details)

	resp = decodeErrorResult(t, errorResultFor(llm.NewError(llm.ErrorTypeDisabled, "AI analysis is disabled", false, nil), 9))
	assert.Equal(t, "ai_disabled", resp.Code)

	assert.Nil(t, errorResultFor(errors.New("connection reset"), 9))
}
