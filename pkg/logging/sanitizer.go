package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxValueLength is the longest captured request value that is stored verbatim.
	MaxValueLength = 512
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens with three base64 segments
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Request fields whose values are never stored.
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(pass|pwd|secret|token|nonce|auth|api[_-]?key|session|cookie|credit|card|cvv|ssn)`)
)

// SanitizeConnectionString removes credentials from a connection string before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError returns err's message with credentials, tokens and keys removed.
// Use this before logging any error from storage or provider calls.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeText(err.Error())
}

// SanitizeValue truncates a captured value and removes sensitive patterns from it.
func SanitizeValue(value string) string {
	if value == "" {
		return ""
	}
	return TruncateString(sanitizeText(value), MaxValueLength)
}

func sanitizeText(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = jwtPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// IsSensitiveKey reports whether a request field name looks like it holds a secret.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}

// RedactValues returns a copy of values with sensitive keys replaced and strings sanitized.
// Nested maps and slices are walked.
func RedactValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if IsSensitiveKey(k) {
			out[k] = RedactedText
			continue
		}
		out[k] = redactAny(v)
	}
	return out
}

// RedactStrings is RedactValues for flat string maps such as headers and cookies.
func RedactStrings(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsSensitiveKey(k) {
			out[k] = RedactedText
			continue
		}
		out[k] = SanitizeValue(v)
	}
	return out
}

func redactAny(v any) any {
	switch val := v.(type) {
	case string:
		return SanitizeValue(val)
	case map[string]any:
		return RedactValues(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactAny(item)
		}
		return out
	default:
		return v
	}
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxLen], "") + "..."
}
