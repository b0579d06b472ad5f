package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

// SettingsHandler serves the read-only effective configuration.
type SettingsHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(cfg *config.Config, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, logger: logger}
}

// RegisterRoutes registers the settings route on the given mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/settings", h.Get)
}

// SettingsResponse is the effective configuration with every secret left out.
// Secrets are reported only as configured or not.
type SettingsResponse struct {
	Version   string            `json:"version"`
	Env       string            `json:"env"`
	Capture   captureSettings   `json:"capture"`
	Snippet   snippetSettings   `json:"snippet"`
	Retention retentionSettings `json:"retention"`
	AI        aiSettings        `json:"ai"`
	Notify    notifySettings    `json:"notify"`
	Ingest    ingestSettings    `json:"ingest"`
	MCP       mcpSettings       `json:"mcp"`
}

type captureSettings struct {
	Mode                string          `json:"capture_mode"`
	Debug               bool            `json:"debug"`
	ErrorLevels         map[string]bool `json:"error_levels"`
	GroupingEnabled     bool            `json:"grouping_enabled"`
	MaxRows             int             `json:"max_rows"`
	MaxErrorsPerRequest int             `json:"max_errors_per_request"`
	LogOncePerRequest   bool            `json:"log_once_per_request"`
	DisableFrontend     bool            `json:"disable_frontend"`
	DisableAdmin        bool            `json:"disable_admin"`
	AdminOnly           bool            `json:"admin_only"`
	Context             map[string]bool `json:"context"`
}

type snippetSettings struct {
	LinesBefore   int `json:"lines_before"`
	LinesAfter    int `json:"lines_after"`
	MaxFileSizeKB int `json:"max_file_size_kb"`
}

type retentionSettings struct {
	Days     int    `json:"retention_days"`
	Schedule string `json:"cleanup_schedule"`
	CronSpec string `json:"cron_spec,omitempty"`
}

type aiSettings struct {
	Enabled       bool   `json:"enabled"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	KeyConfigured bool   `json:"key_configured"`
	Timeout       string `json:"timeout"`
}

type notifySettings struct {
	SlackConfigured   bool `json:"slack_configured"`
	WebhookConfigured bool `json:"webhook_configured"`
}

type ingestSettings struct {
	RatePerSecond       float64 `json:"rate_per_second"`
	Burst               int     `json:"burst"`
	MaxBatch            int     `json:"max_batch"`
	TrustAgentPrivilege bool    `json:"trust_agent_privilege"`
}

type mcpSettings struct {
	Enabled bool `json:"enabled"`
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: BuildSettings(h.cfg)}); err != nil {
		h.logger.Error("Failed to write settings response", zap.Error(err))
	}
}

// BuildSettings projects cfg into its public view.
func BuildSettings(cfg *config.Config) SettingsResponse {
	c := cfg.Capture
	resp := SettingsResponse{
		Version: cfg.Version,
		Env:     cfg.Env,
		Capture: captureSettings{
			Mode:                c.Mode,
			Debug:               c.Debug,
			ErrorLevels:         c.ErrorLevels.AsMap(),
			GroupingEnabled:     c.GroupingEnabled,
			MaxRows:             c.MaxRows,
			MaxErrorsPerRequest: c.MaxErrorsPerRequest,
			LogOncePerRequest:   c.LogOncePerRequest,
			DisableFrontend:     c.DisableFrontend,
			DisableAdmin:        c.DisableAdmin,
			AdminOnly:           c.AdminOnly,
			Context: map[string]bool{
				"get":     c.CaptureGet,
				"post":    c.CapturePost,
				"server":  c.CaptureServer,
				"user":    c.CaptureUser,
				"cookies": c.CaptureCookies,
				"env":     c.CaptureEnv,
				"memory":  c.CaptureMemory,
				"filter":  c.CaptureFilter,
			},
		},
		Snippet: snippetSettings{
			LinesBefore:   cfg.Snippet.LinesBefore,
			LinesAfter:    cfg.Snippet.LinesAfter,
			MaxFileSizeKB: cfg.Snippet.MaxFileSizeKB,
		},
		Retention: retentionSettings{
			Days:     cfg.Retention.Days,
			Schedule: cfg.Retention.Schedule,
			CronSpec: cfg.Retention.CronSpec(),
		},
		AI: aiSettings{
			Enabled:       cfg.AI.Enabled,
			Provider:      cfg.AI.Provider,
			Model:         cfg.AI.ActiveModel(),
			KeyConfigured: cfg.AI.ActiveKey() != "",
			Timeout:       cfg.AI.Timeout.Round(time.Millisecond).String(),
		},
		Notify: notifySettings{
			SlackConfigured:   cfg.Notify.SlackWebhookURL != "",
			WebhookConfigured: cfg.Notify.WebhookURL != "",
		},
		Ingest: ingestSettings{
			RatePerSecond:       cfg.Ingest.RatePerSecond,
			Burst:               cfg.Ingest.Burst,
			MaxBatch:            cfg.Ingest.MaxBatch,
			TrustAgentPrivilege: cfg.Ingest.TrustAgentPrivilege,
		},
		MCP: mcpSettings{Enabled: cfg.MCP.Enabled},
	}
	return resp
}
