package capture

import (
	"context"

	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// Decision is the guard's verdict on an event. Anything but Admitted is a drop.
type Decision string

const (
	Admitted          Decision = "admitted"
	DroppedMode       Decision = "mode"
	DroppedLevel      Decision = "level"
	DroppedAudience   Decision = "audience"
	DroppedSurface    Decision = "surface"
	DroppedRequestCap Decision = "request_cap"
	DroppedDuplicate  Decision = "duplicate"
)

// Admitted reports whether the event may be recorded.
func (d Decision) Admitted() bool {
	return d == Admitted
}

// Guard decides whether an event is recorded at all.
type Guard struct {
	cfg config.CaptureConfig
}

// NewGuard creates a Guard that reads the given capture settings.
func NewGuard(cfg config.CaptureConfig) *Guard {
	return &Guard{cfg: cfg}
}

// Admit runs the checks in order and stops at the first that fails. Only an
// admitted event changes the request scope.
func (g *Guard) Admit(ctx context.Context, ev *models.ErrorEvent) Decision {
	if g.cfg.Mode == config.CaptureModeDebug && !g.cfg.Debug {
		return DroppedMode
	}

	if !g.cfg.ErrorLevels.Enabled(ev.Level) {
		return DroppedLevel
	}

	scope := scopeFor(ctx)
	info := scope.Info()

	if g.cfg.AdminOnly && !info.IsPrivileged {
		return DroppedAudience
	}

	if (g.cfg.DisableAdmin && info.IsAdmin) || (g.cfg.DisableFrontend && !info.IsAdmin) {
		return DroppedSurface
	}

	fingerprint := models.Fingerprint(ev.Message, ev.File, ev.Line)
	return scope.admit(fingerprint, g.cfg.MaxErrorsPerRequest, g.cfg.LogOncePerRequest)
}
