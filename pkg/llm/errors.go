package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies AI analysis failures.
type ErrorType string

const (
	ErrorTypeDisabled ErrorType = "disabled"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeProvider ErrorType = "provider"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeEmpty    ErrorType = "empty"
)

// Error is a failed analysis call. Handlers map Type to an HTTP status and error code.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int // from the provider response, 0 when unknown
	Provider   string
	Model      string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " HTTP %d", e.StatusCode)
	}
	if e.Provider != "" {
		b.WriteString(" provider=" + e.Provider)
	}
	if e.Model != "" {
		b.WriteString(" model=" + e.Model)
	}
	b.WriteString(" " + e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies retry.RetryableError.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError creates an Error with no status or provider details.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// Substrings seen in provider error text. Gemini's OpenAI-compatible endpoint and the
// Anthropic client only surface some failures as text.
var (
	networkSignals   = []string{"timeout", "deadline exceeded", "connection refused", "no such host"}
	authSignals      = []string{"unauthorized", "invalid api key", "authentication", "api key not valid"}
	transientSignals = []string{"rate limit", "overloaded"}
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isNetworkFailure(err error, text string) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr) ||
		containsAny(text, networkSignals)
}

// ClassifyError turns any provider failure into an *Error. An *Error anywhere in
// the chain is returned unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := statusCodeOf(err)
	text := strings.ToLower(err.Error())

	switch {
	case isNetworkFailure(err, text):
		llmErr = NewError(ErrorTypeNetwork, "could not reach AI provider", true, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(text, authSignals):
		llmErr = NewError(ErrorTypeAuth, "authentication failed", false, err)
	default:
		transient := status == http.StatusTooManyRequests || status >= 500 || containsAny(text, transientSignals)
		llmErr = NewError(ErrorTypeProvider, "AI provider returned an error", transient, err)
	}
	llmErr.StatusCode = status
	return llmErr
}

// knownStatuses are searched for in error text when the client gave no typed error.
// 529 is Anthropic's overloaded status.
var knownStatuses = []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529}

func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}

	text := err.Error()
	for _, code := range knownStatuses {
		if strings.Contains(text, strconv.Itoa(code)) {
			return code
		}
	}
	return 0
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error. Unstructured errors count as provider errors.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeProvider
}

// ErrorCode maps err to the API error code reported to clients.
func ErrorCode(err error) string {
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		return "ai_api_error"
	}
	switch llmErr.Type {
	case ErrorTypeDisabled:
		return "ai_disabled"
	case ErrorTypeAuth:
		return "ai_missing_key"
	case ErrorTypeNetwork:
		return "ai_network_error"
	case ErrorTypeEmpty:
		return "ai_empty"
	default:
		return "ai_api_error"
	}
}
