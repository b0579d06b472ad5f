package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Error log statuses. Ingestion never changes a status; only explicit user action does.
const (
	ErrorStatusOpen     = "open"
	ErrorStatusResolved = "resolved"
	ErrorStatusIgnored  = "ignored"
)

// ValidErrorStatus reports whether status is one of open, resolved or ignored.
func ValidErrorStatus(status string) bool {
	switch status {
	case ErrorStatusOpen, ErrorStatusResolved, ErrorStatusIgnored:
		return true
	}
	return false
}

// RecordOutcome is the result of recording an error log in the grouping store.
type RecordOutcome string

const (
	// OutcomeGrouped means an existing record's counter was incremented.
	OutcomeGrouped RecordOutcome = "grouped"
	// OutcomeInserted means a new record was created.
	OutcomeInserted RecordOutcome = "inserted"
	// OutcomeSkipped means the capacity governor refused the insert.
	OutcomeSkipped RecordOutcome = "skipped"
	// OutcomeError means a storage failure was caught and the event was lost.
	OutcomeError RecordOutcome = "error"
)

// Fingerprint returns the grouping key for an error: hex sha256 of message|file|line.
// Stack trace, timestamp and context are deliberately not part of it.
func Fingerprint(message, file string, line int) string {
	sum := sha256.Sum256([]byte(message + "|" + file + "|" + strconv.Itoa(line)))
	return hex.EncodeToString(sum[:])
}

// ErrorLog is a grouped, persisted error record.
type ErrorLog struct {
	ID               int64          `json:"id"`
	ErrorType        string         `json:"error_type"`
	Severity         string         `json:"severity"`
	Message          string         `json:"error_message"`
	FilePath         string         `json:"file_path"`
	LineNumber       int            `json:"line_number"`
	StackTrace       []StackFrame   `json:"stack_trace"`
	RuntimeVersion   string         `json:"runtime_version"`
	FrameworkVersion string         `json:"framework_version"`
	ActiveTheme      string         `json:"active_theme"`
	Culprit          string         `json:"culprit"`
	ShareToken       string         `json:"share_token"`
	CodeSnippet      *CodeSnippet   `json:"code_snippet"`
	ErrorHash        string         `json:"error_hash"`
	OccurrenceCount  int64          `json:"occurrence_count"`
	RequestContext   map[string]any `json:"request_context"`
	EnvContext       map[string]any `json:"env_context"`
	Status           string         `json:"status"`
	LastSeen         time.Time      `json:"last_seen"`
	CreatedAt        time.Time      `json:"created_at"`
}

const requestFlagsKey = "flags"

// SetRequestFlags stores the admin and REST flags of the originating request in
// the request context so classification can use them later.
func (l *ErrorLog) SetRequestFlags(isAdmin, isREST bool) {
	if l.RequestContext == nil {
		l.RequestContext = make(map[string]any)
	}
	l.RequestContext[requestFlagsKey] = map[string]any{"is_admin": isAdmin, "is_rest": isREST}
}

// RequestFlags returns the flags stored by SetRequestFlags. Missing flags are false.
func (l *ErrorLog) RequestFlags() (isAdmin, isREST bool) {
	flags, ok := l.RequestContext[requestFlagsKey].(map[string]any)
	if !ok {
		return false, false
	}
	isAdmin, _ = flags["is_admin"].(bool)
	isREST, _ = flags["is_rest"].(bool)
	return isAdmin, isREST
}

// CodeSnippet is a bounded window of source lines around the error line.
// Lines are keyed by their 1-based line number.
type CodeSnippet struct {
	Lines     map[int]string `json:"lines"`
	Target    int            `json:"target"`
	Truncated bool           `json:"truncated,omitempty"`
}

// IsEmpty reports whether the snippet carries no lines and no truncation marker.
func (s *CodeSnippet) IsEmpty() bool {
	return s == nil || (len(s.Lines) == 0 && !s.Truncated)
}

// List paging bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ErrorLogFilters contains list filters for the query API.
type ErrorLogFilters struct {
	Status string
	Limit  int
	Offset int
}

// Normalize applies the default and maximum page size and clamps a negative offset.
func (f ErrorLogFilters) Normalize() ErrorLogFilters {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ErrorLogStats contains aggregate numbers for the dashboard header.
type ErrorLogStats struct {
	Total      int64            `json:"total"`
	Oldest     *time.Time       `json:"oldest,omitempty"`
	Newest     *time.Time       `json:"newest,omitempty"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySeverity map[string]int64 `json:"by_severity"`
}
