package models

import (
	"strings"
	"time"
)

// Level is the configuration bucket an error belongs to.
// Capture settings enable or disable whole buckets.
type Level string

const (
	LevelFatal      Level = "fatal"
	LevelParse      Level = "parse"
	LevelExceptions Level = "exceptions"
	LevelWarnings   Level = "warnings"
	LevelNotices    Level = "notices"
	LevelDeprecated Level = "deprecated"
	LevelStrict     Level = "strict"
)

// AllLevels lists every level bucket in display order.
var AllLevels = []Level{
	LevelFatal, LevelParse, LevelExceptions, LevelWarnings,
	LevelNotices, LevelDeprecated, LevelStrict,
}

// ParseLevel returns the level for s, and false if s names no known bucket.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllLevels {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// StackFrame is a single frame of a captured stack trace.
type StackFrame struct {
	Function string `json:"function,omitempty"`
	Class    string `json:"class,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// ErrorEvent is an ephemeral error produced by the monitored application.
type ErrorEvent struct {
	Type      string       `json:"type"`
	Level     Level        `json:"level"`
	Message   string       `json:"message"`
	File      string       `json:"file"`
	Line      int          `json:"line"`
	Trace     []StackFrame `json:"trace,omitempty"`
	Timestamp time.Time    `json:"timestamp"`

	// Snippet may be sent by agents that run where the source file lives.
	Snippet *CodeSnippet `json:"snippet,omitempty"`

	// Remote marks an event posted by an agent. File then names a path on the
	// agent's host and is never read locally.
	Remote bool `json:"-"`

	Request *RequestData `json:"request,omitempty"`
	Env     *EnvFacts    `json:"env,omitempty"`
}

// RequestData is the raw request information an event may carry.
// Which parts are stored is decided by capture settings.
type RequestData struct {
	Query   map[string]any    `json:"get,omitempty"`
	Form    map[string]any    `json:"post,omitempty"`
	Server  map[string]string `json:"server,omitempty"`
	Cookies map[string]string `json:"cookies,omitempty"`
}

// EnvFacts is environment information reported with an event.
type EnvFacts struct {
	RuntimeVersion   string   `json:"runtime_version,omitempty"`
	FrameworkVersion string   `json:"framework_version,omitempty"`
	ActiveTheme      string   `json:"active_theme,omitempty"`
	ServerOS         string   `json:"server_os,omitempty"`
	UserID           int64    `json:"user_id,omitempty"`
	UserRoles        []string `json:"user_roles,omitempty"`
	CurrentFilter    string   `json:"current_filter,omitempty"`
	MemoryUsage      uint64   `json:"memory_usage,omitempty"`
	PeakMemory       uint64   `json:"peak_memory,omitempty"`
}

// LevelForType guesses the level bucket from a display type such as "User Warning".
func LevelForType(errorType string) Level {
	t := strings.ToLower(errorType)
	switch {
	case strings.Contains(t, "parse"):
		return LevelParse
	case strings.Contains(t, "exception"):
		return LevelExceptions
	case strings.Contains(t, "fatal") || strings.Contains(t, "error"):
		return LevelFatal
	case strings.Contains(t, "warning"):
		return LevelWarnings
	case strings.Contains(t, "deprecated"):
		return LevelDeprecated
	case strings.Contains(t, "strict"):
		return LevelStrict
	}
	return LevelNotices
}

// SeverityBucket returns the coarse display severity stored with a record.
func SeverityBucket(errorType, message string) string {
	t := strings.ToLower(errorType)
	switch {
	case strings.Contains(t, "fatal") || strings.Contains(t, "error"):
		return "Fatal"
	case strings.Contains(t, "warning"):
		return "Warning"
	case strings.Contains(t, "deprecated"):
		return "Deprecated"
	case strings.Contains(strings.ToLower(message), "memory"):
		return "Memory"
	}
	return "Notice"
}

// PHP error constants, as sent by PHP agents in place of a level name.
const (
	ErrnoError            = 1
	ErrnoWarning          = 2
	ErrnoParse            = 4
	ErrnoNotice           = 8
	ErrnoCoreError        = 16
	ErrnoCompileError     = 64
	ErrnoUserError        = 256
	ErrnoUserWarning      = 512
	ErrnoUserNotice       = 1024
	ErrnoStrict           = 2048
	ErrnoRecoverableError = 4096
	ErrnoDeprecated       = 8192
	ErrnoUserDeprecated   = 16384
)

// LevelForErrno maps a PHP error number to its level bucket.
// Unknown numbers fall into notices.
func LevelForErrno(errno int) Level {
	switch errno {
	case ErrnoWarning, ErrnoUserWarning:
		return LevelWarnings
	case ErrnoNotice, ErrnoUserNotice:
		return LevelNotices
	case ErrnoDeprecated, ErrnoUserDeprecated:
		return LevelDeprecated
	case ErrnoStrict:
		return LevelStrict
	case ErrnoRecoverableError, ErrnoError, ErrnoCoreError, ErrnoCompileError, ErrnoUserError:
		return LevelFatal
	case ErrnoParse:
		return LevelParse
	}
	return LevelNotices
}

// TypeNameForErrno returns the display type for a PHP error number.
func TypeNameForErrno(errno int) string {
	switch errno {
	case ErrnoError:
		return "PHP Fatal Error"
	case ErrnoWarning:
		return "Warning"
	case ErrnoParse:
		return "PHP Parse Error"
	case ErrnoNotice:
		return "Notice"
	case ErrnoCoreError:
		return "PHP Core Error"
	case ErrnoCompileError:
		return "PHP Compile Error"
	case ErrnoUserError:
		return "User Error"
	case ErrnoUserWarning:
		return "User Warning"
	case ErrnoUserNotice:
		return "User Notice"
	case ErrnoStrict:
		return "Strict Standards"
	case ErrnoRecoverableError:
		return "Catchable Fatal Error"
	case ErrnoDeprecated:
		return "Deprecated"
	case ErrnoUserDeprecated:
		return "User Deprecated"
	}
	return "PHP Error"
}
