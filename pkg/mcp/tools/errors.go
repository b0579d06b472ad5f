package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/llm"
)

// ErrorResponse represents a structured error in tool results.
// Actionable errors are returned as tool results so the client sees them
// instead of a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad arguments, unknown ids);
// storage failures should still be returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// errorResultFor maps known domain errors to tool results. It returns nil for
// errors that should surface as protocol errors.
func errorResultFor(err error, id int64) *mcp.CallToolResult {
	var llmErr *llm.Error
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", fmt.Sprintf("no error log with id %d", id))
	case errors.Is(err, apperrors.ErrInvalidStatus):
		return NewErrorResultWithDetails("invalid_status", "status must be open, resolved or ignored",
			map[string]any{"valid_statuses": []string{"open", "resolved", "ignored"}})
	case errors.As(err, &llmErr):
		return NewErrorResult(llm.ErrorCode(err), llmErr.Message)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
