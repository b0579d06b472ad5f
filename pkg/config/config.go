package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"

	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// Capture modes.
const (
	CaptureModeDebug      = "debug"
	CaptureModeProduction = "production"
)

// AI providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for bugsneak.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// RulesFile optionally points at a YAML file of extra classification rules.
	RulesFile string `yaml:"rules_file" env:"RULES_FILE" env-default:""`

	Database  DatabaseConfig  `yaml:"database"`
	Capture   CaptureConfig   `yaml:"capture"`
	Snippet   SnippetConfig   `yaml:"snippet"`
	Site      SiteConfig      `yaml:"site"`
	Retention RetentionConfig `yaml:"retention"`
	AI        AIConfig        `yaml:"ai"`
	Notify    NotifyConfig    `yaml:"notify"`
	Ingest    IngestConfig    `yaml:"ingest"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"bugsneak"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"bugsneak"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// CaptureConfig controls which events are admitted and how they are stored.
type CaptureConfig struct {
	// Mode is "debug" (capture only when Debug is set) or "production" (always capture).
	Mode  string `yaml:"capture_mode" env:"CAPTURE_MODE" env-default:"debug"`
	Debug bool   `yaml:"debug" env:"CAPTURE_DEBUG" env-default:"false"`

	ErrorLevels ErrorLevels `yaml:"error_levels"`

	GroupingEnabled bool `yaml:"grouping_enabled" env:"CAPTURE_GROUPING_ENABLED" env-default:"true"`
	// MaxRows caps stored groups. 0 means unlimited.
	MaxRows             int  `yaml:"max_rows" env:"CAPTURE_MAX_ROWS" env-default:"10000"`
	MaxErrorsPerRequest int  `yaml:"max_errors_per_request" env:"CAPTURE_MAX_ERRORS_PER_REQUEST" env-default:"10"`
	LogOncePerRequest   bool `yaml:"log_once_per_request" env:"CAPTURE_LOG_ONCE_PER_REQUEST" env-default:"false"`
	DisableFrontend     bool `yaml:"disable_frontend" env:"CAPTURE_DISABLE_FRONTEND" env-default:"false"`
	DisableAdmin        bool `yaml:"disable_admin" env:"CAPTURE_DISABLE_ADMIN" env-default:"false"`
	AdminOnly           bool `yaml:"admin_only" env:"CAPTURE_ADMIN_ONLY" env-default:"false"`

	// Context capture toggles
	CaptureGet     bool `yaml:"capture_get" env:"CAPTURE_GET" env-default:"true"`
	CapturePost    bool `yaml:"capture_post" env:"CAPTURE_POST" env-default:"true"`
	CaptureServer  bool `yaml:"capture_server" env:"CAPTURE_SERVER" env-default:"true"`
	CaptureUser    bool `yaml:"capture_user" env:"CAPTURE_USER" env-default:"true"`
	CaptureCookies bool `yaml:"capture_cookies" env:"CAPTURE_COOKIES" env-default:"false"`
	CaptureEnv     bool `yaml:"capture_env" env:"CAPTURE_ENV" env-default:"false"`
	CaptureMemory  bool `yaml:"capture_memory" env:"CAPTURE_MEMORY" env-default:"true"`
	CaptureFilter  bool `yaml:"capture_filter" env:"CAPTURE_FILTER" env-default:"true"`

	// StoreTimeout bounds the grouping round trip for a single event.
	StoreTimeout time.Duration `yaml:"store_timeout" env:"CAPTURE_STORE_TIMEOUT" env-default:"2s"`
}

// ErrorLevels enables capture per level bucket.
type ErrorLevels struct {
	Fatal      bool `yaml:"fatal" env:"CAPTURE_LEVEL_FATAL" env-default:"true"`
	Parse      bool `yaml:"parse" env:"CAPTURE_LEVEL_PARSE" env-default:"true"`
	Exceptions bool `yaml:"exceptions" env:"CAPTURE_LEVEL_EXCEPTIONS" env-default:"true"`
	Warnings   bool `yaml:"warnings" env:"CAPTURE_LEVEL_WARNINGS" env-default:"true"`
	Notices    bool `yaml:"notices" env:"CAPTURE_LEVEL_NOTICES" env-default:"true"`
	Deprecated bool `yaml:"deprecated" env:"CAPTURE_LEVEL_DEPRECATED" env-default:"true"`
	Strict     bool `yaml:"strict" env:"CAPTURE_LEVEL_STRICT" env-default:"false"`
}

// Enabled reports whether events in the given level bucket are captured.
// Unknown levels are not captured.
func (l ErrorLevels) Enabled(level models.Level) bool {
	switch level {
	case models.LevelFatal:
		return l.Fatal
	case models.LevelParse:
		return l.Parse
	case models.LevelExceptions:
		return l.Exceptions
	case models.LevelWarnings:
		return l.Warnings
	case models.LevelNotices:
		return l.Notices
	case models.LevelDeprecated:
		return l.Deprecated
	case models.LevelStrict:
		return l.Strict
	default:
		return false
	}
}

// AsMap returns the levels keyed by bucket name.
func (l ErrorLevels) AsMap() map[string]bool {
	out := make(map[string]bool, len(models.AllLevels))
	for _, level := range models.AllLevels {
		out[string(level)] = l.Enabled(level)
	}
	return out
}

// SnippetConfig bounds code snippet extraction.
type SnippetConfig struct {
	LinesBefore   int `yaml:"lines_before" env:"SNIPPET_LINES_BEFORE" env-default:"5"`
	LinesAfter    int `yaml:"lines_after" env:"SNIPPET_LINES_AFTER" env-default:"5"`
	MaxFileSizeKB int `yaml:"max_file_size_kb" env:"SNIPPET_MAX_FILE_SIZE_KB" env-default:"512"`
}

// SiteConfig holds facts about the monitored site used by classification.
type SiteConfig struct {
	RuntimeVersion   string `yaml:"runtime_version" env:"SITE_RUNTIME_VERSION" env-default:""`
	FrameworkVersion string `yaml:"framework_version" env:"SITE_FRAMEWORK_VERSION" env-default:""`
	Multisite        bool   `yaml:"multisite" env:"SITE_MULTISITE" env-default:"false"`
	MemoryLimit      string `yaml:"memory_limit" env:"SITE_MEMORY_LIMIT" env-default:""`
	ActiveTheme      string `yaml:"active_theme" env:"SITE_ACTIVE_THEME" env-default:""`
}

// RetentionConfig controls the scheduled cleanup sweep.
type RetentionConfig struct {
	Days int `yaml:"retention_days" env:"RETENTION_DAYS" env-default:"30"`
	// Schedule is "daily", "weekly" or a five-field cron expression. Empty disables the sweep.
	Schedule string `yaml:"cleanup_schedule" env:"RETENTION_SCHEDULE" env-default:"daily"`
}

// CronSpec returns the schedule as a cron spec understood by robfig/cron.
func (r RetentionConfig) CronSpec() string {
	switch r.Schedule {
	case "daily":
		return "@daily"
	case "weekly":
		return "@weekly"
	default:
		return r.Schedule
	}
}

// AIConfig configures the optional AI deep dive.
type AIConfig struct {
	Enabled          bool          `yaml:"enabled" env:"AI_ENABLED" env-default:"false"`
	Provider         string        `yaml:"provider" env:"AI_PROVIDER" env-default:"gemini"`
	GeminiModel      string        `yaml:"gemini_model" env:"AI_GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	OpenAIModel      string        `yaml:"openai_model" env:"AI_OPENAI_MODEL" env-default:"gpt-4o-mini"`
	AnthropicModel   string        `yaml:"anthropic_model" env:"AI_ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
	GeminiBaseURL    string        `yaml:"gemini_base_url" env:"AI_GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	OpenAIBaseURL    string        `yaml:"openai_base_url" env:"AI_OPENAI_BASE_URL" env-default:""`
	AnthropicBaseURL string        `yaml:"anthropic_base_url" env:"AI_ANTHROPIC_BASE_URL" env-default:""`
	Timeout          time.Duration `yaml:"timeout" env:"AI_TIMEOUT" env-default:"30s"`

	GeminiKey    string `yaml:"-" env:"GEMINI_API_KEY"`    // Secret - not in YAML
	OpenAIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// ActiveModel returns the model configured for the selected provider.
func (a AIConfig) ActiveModel() string {
	switch a.Provider {
	case ProviderOpenAI:
		return a.OpenAIModel
	case ProviderAnthropic:
		return a.AnthropicModel
	default:
		return a.GeminiModel
	}
}

// ActiveKey returns the API key for the selected provider.
func (a AIConfig) ActiveKey() string {
	switch a.Provider {
	case ProviderOpenAI:
		return a.OpenAIKey
	case ProviderAnthropic:
		return a.AnthropicKey
	default:
		return a.GeminiKey
	}
}

// NotifyConfig configures new-group notifications. Empty URLs disable a channel.
type NotifyConfig struct {
	SlackWebhookURL string        `yaml:"-" env:"NOTIFY_SLACK_WEBHOOK_URL"` // Secret - not in YAML
	WebhookURL      string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL" env-default:""`
	Timeout         time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT" env-default:"10s"`
}

// Enabled reports whether any notification channel is configured.
func (n NotifyConfig) Enabled() bool {
	return n.SlackWebhookURL != "" || n.WebhookURL != ""
}

// IngestConfig rate-limits the ingest endpoint per client. Unless
// TrustAgentPrivilege is set, the is_admin and is_privileged flags an agent
// sends are ignored.
type IngestConfig struct {
	RatePerSecond       float64 `yaml:"rate_per_second" env:"INGEST_RATE_PER_SECOND" env-default:"50"`
	Burst               int     `yaml:"burst" env:"INGEST_BURST" env-default:"100"`
	MaxBatch            int     `yaml:"max_batch" env:"INGEST_MAX_BATCH" env-default:"100"`
	TrustAgentPrivilege bool    `yaml:"trust_agent_privilege" env:"INGEST_TRUST_AGENT_PRIVILEGE" env-default:"false"`
}

// MCPConfig toggles the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot act on.
func (c *Config) Validate() error {
	switch c.Capture.Mode {
	case CaptureModeDebug, CaptureModeProduction:
	default:
		return fmt.Errorf("capture_mode must be %q or %q, got %q", CaptureModeDebug, CaptureModeProduction, c.Capture.Mode)
	}

	if c.Capture.MaxRows < 0 {
		return fmt.Errorf("max_rows must not be negative")
	}
	if c.Capture.MaxErrorsPerRequest < 0 {
		return fmt.Errorf("max_errors_per_request must not be negative")
	}

	if c.Retention.Schedule != "" {
		if _, err := ParseSchedule(c.Retention.CronSpec()); err != nil {
			return fmt.Errorf("invalid cleanup_schedule %q: %w", c.Retention.Schedule, err)
		}
	}

	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown AI provider %q", c.AI.Provider)
	}

	return nil
}

// ParseSchedule parses a standard five-field cron spec or a descriptor such as @daily.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
