// Package capture turns error events into grouped error logs: it guards, enriches
// and records them, and recovers panics into events.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/culprit"
	"github.com/ekaya-inc/bugsneak/pkg/logging"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/snippet"
)

// Store records an error log and reports what happened. It must not panic or
// return errors to the caller.
type Store interface {
	Record(ctx context.Context, log *models.ErrorLog) models.RecordOutcome
}

// Observer is told about every guard drop and store outcome.
type Observer interface {
	ObserveDrop(reason string)
	ObserveOutcome(outcome models.RecordOutcome)
}

// Notifier is told when an event created a new group.
type Notifier interface {
	NotifyNewGroup(ctx context.Context, log *models.ErrorLog)
}

// Result describes what happened to one captured event.
type Result struct {
	Decision Decision             `json:"decision"`
	Outcome  models.RecordOutcome `json:"outcome,omitempty"`
	Buffered bool                 `json:"buffered,omitempty"`
}

// serverKeys is the subset of server variables kept with a record.
var serverKeys = []string{"HTTP_HOST", "REQUEST_URI", "REQUEST_METHOD", "REMOTE_ADDR", "HTTP_USER_AGENT"}

// Capturer admits, enriches and records error events.
type Capturer struct {
	guard    *Guard
	capture  config.CaptureConfig
	snippet  snippet.Options
	site     config.SiteConfig
	observer Observer
	notifier Notifier
	logger   *zap.Logger
	early    *EarlyBuffer

	mu    sync.RWMutex
	store Store
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithStore attaches the store at construction time.
func WithStore(store Store) Option {
	return func(c *Capturer) { c.store = store }
}

// WithObserver reports drops and outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Capturer) { c.observer = o }
}

// WithNotifier announces new groups to n.
func WithNotifier(n Notifier) Option {
	return func(c *Capturer) { c.notifier = n }
}

// WithEarlyBuffer replaces the default early buffer.
func WithEarlyBuffer(b *EarlyBuffer) Option {
	return func(c *Capturer) { c.early = b }
}

// NewCapturer creates a Capturer. Without a store, admitted events are held in
// the early buffer until Attach is called.
func NewCapturer(cfg *config.Config, guard *Guard, logger *zap.Logger, opts ...Option) *Capturer {
	c := &Capturer{
		guard:   guard,
		capture: cfg.Capture,
		snippet: snippet.Options{
			LinesBefore:   cfg.Snippet.LinesBefore,
			LinesAfter:    cfg.Snippet.LinesAfter,
			MaxFileSizeKB: cfg.Snippet.MaxFileSizeKB,
		},
		site:   cfg.Site,
		logger: logger.Named("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.early == nil {
		c.early = NewEarlyBuffer(DefaultEarlyBufferSize)
	}
	return c
}

// Attach sets the store and replays any events buffered before it was ready.
// It returns the number of replayed events.
func (c *Capturer) Attach(ctx context.Context, store Store) int {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()

	n := c.early.Drain(func(ev *models.ErrorEvent) {
		c.record(ctx, store, ev)
	})
	if n > 0 {
		c.logger.Info("Replayed early events", zap.Int("count", n), zap.Int("dropped", c.early.Dropped()))
	}
	return n
}

func (c *Capturer) currentStore() Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Capture runs ev through the guard and, if admitted, records it.
// Failures are logged and reported in the Result, never returned or panicked.
func (c *Capturer) Capture(ctx context.Context, ev *models.ErrorEvent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered panic while capturing event", zap.Any("panic", r))
			res = Result{Decision: res.Decision, Outcome: models.OutcomeError}
		}
	}()

	if ev == nil {
		return Result{Decision: DroppedLevel}
	}
	normalize(ev)

	decision := c.guard.Admit(ctx, ev)
	if !decision.Admitted() {
		c.logger.Debug("Event dropped by guard",
			zap.String("reason", string(decision)),
			zap.String("type", ev.Type))
		if c.observer != nil {
			c.observer.ObserveDrop(string(decision))
		}
		return Result{Decision: decision}
	}

	store := c.currentStore()
	if store == nil {
		if !c.early.Push(ev) {
			c.logger.Debug("Early buffer full, event discarded", zap.String("type", ev.Type))
		}
		return Result{Decision: decision, Buffered: true}
	}

	return Result{Decision: decision, Outcome: c.record(ctx, store, ev)}
}

// HandleEvent makes the Capturer usable as a final Handler.
func (c *Capturer) HandleEvent(ctx context.Context, ev *models.ErrorEvent) {
	c.Capture(ctx, ev)
}

// Wrap is a Middleware that captures each event and then always calls next.
func (c *Capturer) Wrap(next Handler) Handler {
	if next == nil {
		next = Discard
	}
	return HandlerFunc(func(ctx context.Context, ev *models.ErrorEvent) {
		c.Capture(ctx, ev)
		next.HandleEvent(ctx, ev)
	})
}

func (c *Capturer) record(ctx context.Context, store Store, ev *models.ErrorEvent) models.RecordOutcome {
	log := c.BuildLog(ev)
	if scope, ok := ScopeFromContext(ctx); ok {
		info := scope.Info()
		log.SetRequestFlags(info.IsAdmin, info.IsREST)
	}

	timeout := c.capture.StoreTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	storeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := store.Record(storeCtx, log)
	if c.observer != nil {
		c.observer.ObserveOutcome(outcome)
	}

	switch outcome {
	case models.OutcomeSkipped:
		c.logger.Debug("Event skipped, store at capacity", zap.String("hash", log.ErrorHash))
	case models.OutcomeInserted:
		if c.notifier != nil {
			c.notifier.NotifyNewGroup(context.WithoutCancel(ctx), log)
		}
	}
	return outcome
}

// BuildLog turns an event into an insertable record. Captured request data is
// filtered by the capture toggles and redacted. Only in-process events get a
// snippet read from disk; remote events keep whatever snippet the agent sent.
func (c *Capturer) BuildLog(ev *models.ErrorEvent) *models.ErrorLog {
	normalize(ev)

	hash := models.Fingerprint(ev.Message, ev.File, ev.Line)
	if !c.capture.GroupingEnabled {
		hash = models.Fingerprint(ev.Message+"#"+uuid.NewString(), ev.File, ev.Line)
	}

	code := ev.Snippet
	if code.IsEmpty() && !ev.Remote {
		code = snippet.Extract(ev.File, ev.Line, c.snippet)
	}

	log := &models.ErrorLog{
		ErrorType:        ev.Type,
		Severity:         models.SeverityBucket(ev.Type, ev.Message),
		Message:          ev.Message,
		FilePath:         ev.File,
		LineNumber:       ev.Line,
		StackTrace:       ev.Trace,
		RuntimeVersion:   c.site.RuntimeVersion,
		FrameworkVersion: c.site.FrameworkVersion,
		ActiveTheme:      c.site.ActiveTheme,
		Culprit:          detectCulprit(ev),
		ShareToken:       uuid.NewString(),
		CodeSnippet:      code,
		ErrorHash:        hash,
		OccurrenceCount:  1,
		RequestContext:   c.requestContext(ev.Request),
		EnvContext:       c.envContext(ev.Env),
		Status:           models.ErrorStatusOpen,
		LastSeen:         ev.Timestamp,
		CreatedAt:        ev.Timestamp,
	}

	if env := ev.Env; env != nil {
		if env.RuntimeVersion != "" {
			log.RuntimeVersion = env.RuntimeVersion
		}
		if env.FrameworkVersion != "" {
			log.FrameworkVersion = env.FrameworkVersion
		}
		if env.ActiveTheme != "" {
			log.ActiveTheme = env.ActiveTheme
		}
	}

	return log
}

func (c *Capturer) requestContext(req *models.RequestData) map[string]any {
	if req == nil {
		return nil
	}

	out := make(map[string]any)
	var flagged []SuspiciousParam

	if c.capture.CaptureGet && len(req.Query) > 0 {
		out["get"] = logging.RedactValues(req.Query)
		flagged = append(flagged, FlagSuspiciousParams("get", req.Query)...)
	}
	if c.capture.CapturePost && len(req.Form) > 0 {
		out["post"] = logging.RedactValues(req.Form)
		flagged = append(flagged, FlagSuspiciousParams("post", req.Form)...)
	}
	if c.capture.CaptureServer && len(req.Server) > 0 {
		server := make(map[string]string)
		for _, key := range serverKeys {
			if v, ok := req.Server[key]; ok {
				server[key] = v
			}
		}
		if len(server) > 0 {
			out["server"] = logging.RedactStrings(server)
		}
	}
	if c.capture.CaptureCookies && len(req.Cookies) > 0 {
		out["cookies"] = logging.RedactStrings(req.Cookies)
	}
	if len(flagged) > 0 {
		out["suspicious_params"] = flagged
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Capturer) envContext(env *models.EnvFacts) map[string]any {
	if env == nil {
		return nil
	}

	out := make(map[string]any)
	if c.capture.CaptureUser && env.UserID != 0 {
		out["user_id"] = env.UserID
		out["user_roles"] = env.UserRoles
	}
	if c.capture.CaptureFilter && env.CurrentFilter != "" {
		out["current_filter"] = env.CurrentFilter
	}
	if c.capture.CaptureMemory && env.MemoryUsage > 0 {
		out["memory_usage"] = env.MemoryUsage
		out["peak_memory"] = env.PeakMemory
	}
	if c.capture.CaptureEnv {
		if env.ServerOS != "" {
			out["server_os"] = env.ServerOS
		}
		if env.RuntimeVersion != "" {
			out["runtime_version"] = env.RuntimeVersion
		}
		if env.FrameworkVersion != "" {
			out["framework_version"] = env.FrameworkVersion
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// detectCulprit uses the error file and falls back to the first attributable frame.
func detectCulprit(ev *models.ErrorEvent) string {
	if who := culprit.Detect(ev.File); who != culprit.Unknown {
		return who
	}
	for _, frame := range ev.Trace {
		if who := culprit.Detect(frame.File); who != culprit.Unknown {
			return who
		}
	}
	return culprit.Unknown
}

func normalize(ev *models.ErrorEvent) {
	if ev.Type == "" {
		ev.Type = "Error"
	}
	if ev.Level == "" {
		ev.Level = models.LevelForType(ev.Type)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
}

// PanicEvent builds the event for a recovered panic value.
func PanicEvent(recovered any, frames []models.StackFrame) *models.ErrorEvent {
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprint(v)
	}

	ev := &models.ErrorEvent{
		Type:      PanicType,
		Level:     models.LevelFatal,
		Message:   message,
		Trace:     frames,
		Timestamp: time.Now().UTC(),
	}
	if len(frames) > 0 {
		ev.File = frames[0].File
		ev.Line = frames[0].Line
	}
	return ev
}
