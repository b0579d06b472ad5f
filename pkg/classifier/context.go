package classifier

// Context is the environment snapshot used to adjust rule weights.
// Empty version strings disable the version-based adjustments.
type Context struct {
	RuntimeVersion   string `json:"runtime_version,omitempty"`
	FrameworkVersion string `json:"framework_version,omitempty"`
	IsMultisite      bool   `json:"is_multisite"`
	IsREST           bool   `json:"is_rest"`
	IsAdmin          bool   `json:"is_admin"`
	MemoryLimit      string `json:"memory_limit,omitempty"`

	// Culprit and IsSpike are supplied per record by the caller.
	Culprit string `json:"culprit,omitempty"`
	IsSpike bool   `json:"is_spike"`
}

// WithFallbackVersions fills empty version fields from a record's own facts.
func (c Context) WithFallbackVersions(runtimeVersion, frameworkVersion string) Context {
	if c.RuntimeVersion == "" {
		c.RuntimeVersion = runtimeVersion
	}
	if c.FrameworkVersion == "" {
		c.FrameworkVersion = frameworkVersion
	}
	return c
}

// SiteInfo holds the static facts about the monitored site.
type SiteInfo struct {
	RuntimeVersion   string
	FrameworkVersion string
	Multisite        bool
	MemoryLimit      string
}

// RequestFlags describes the request the classification is being made for.
type RequestFlags struct {
	IsREST  bool
	IsAdmin bool
}

// ContextBuilder assembles classification contexts from site facts and request flags.
type ContextBuilder struct {
	site SiteInfo
}

// NewContextBuilder creates a builder for the given site.
func NewContextBuilder(site SiteInfo) *ContextBuilder {
	return &ContextBuilder{site: site}
}

// Build returns a snapshot for one request. It has no side effects.
func (b *ContextBuilder) Build(flags RequestFlags) Context {
	return Context{
		RuntimeVersion:   b.site.RuntimeVersion,
		FrameworkVersion: b.site.FrameworkVersion,
		IsMultisite:      b.site.Multisite,
		IsREST:           flags.IsREST,
		IsAdmin:          flags.IsAdmin,
		MemoryLimit:      b.site.MemoryLimit,
	}
}
