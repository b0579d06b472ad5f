package capture

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/bugsneak/pkg/classifier"
)

type scopeKey struct{}

// RequestInfo describes the request an event was raised in.
type RequestInfo struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"is_admin"`
	IsPrivileged bool   `json:"is_privileged"`
	IsREST       bool   `json:"is_rest"`
}

// RequestScope holds per-request capture state: how many events were admitted and
// which fingerprints were already seen. It is safe for concurrent use.
type RequestScope struct {
	info RequestInfo

	mu    sync.Mutex
	count int
	seen  map[string]struct{}
}

// NewRequestScope creates an empty scope for one request.
func NewRequestScope(info RequestInfo) *RequestScope {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	return &RequestScope{
		info: info,
		seen: make(map[string]struct{}),
	}
}

// NewRequestContext attaches a fresh scope to ctx. The returned func releases the
// scope state and must be called when the request ends.
func NewRequestContext(ctx context.Context, info RequestInfo) (context.Context, func()) {
	scope := NewRequestScope(info)
	return context.WithValue(ctx, scopeKey{}, scope), scope.release
}

// ScopeFromContext returns the request scope carried by ctx, if any.
func ScopeFromContext(ctx context.Context) (*RequestScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*RequestScope)
	return scope, ok && scope != nil
}

// scopeFor returns the scope in ctx or a fresh single-use one.
func scopeFor(ctx context.Context) *RequestScope {
	if scope, ok := ScopeFromContext(ctx); ok {
		return scope
	}
	return NewRequestScope(RequestInfo{})
}

// Info returns the request description the scope was created with.
func (s *RequestScope) Info() RequestInfo {
	return s.info
}

// Flags returns the request flags used to build a classification context.
func (s *RequestScope) Flags() classifier.RequestFlags {
	return classifier.RequestFlags{IsREST: s.info.IsREST, IsAdmin: s.info.IsAdmin}
}

// Count returns how many events were admitted in this request.
func (s *RequestScope) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// admit applies the per-request cap and the log-once rule and, on success,
// records the fingerprint. Check and record happen under one lock.
func (s *RequestScope) admit(fingerprint string, maxPerRequest int, logOnce bool) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxPerRequest > 0 && s.count >= maxPerRequest {
		return DroppedRequestCap
	}
	if _, dup := s.seen[fingerprint]; logOnce && dup {
		return DroppedDuplicate
	}

	s.count++
	s.seen[fingerprint] = struct{}{}
	return Admitted
}

func (s *RequestScope) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.seen = make(map[string]struct{})
}

// RequestInfoFunc derives RequestInfo from an HTTP request.
type RequestInfoFunc func(r *http.Request) RequestInfo

// DefaultRequestInfo takes the id from X-Request-ID, treats /admin paths as admin
// and /api paths as REST. Nothing is privileged.
func DefaultRequestInfo(r *http.Request) RequestInfo {
	return RequestInfo{
		ID:      r.Header.Get("X-Request-ID"),
		IsAdmin: strings.HasPrefix(r.URL.Path, "/admin"),
		IsREST:  strings.HasPrefix(r.URL.Path, "/api/"),
	}
}

// ScopeMiddleware gives every HTTP request its own capture scope.
func ScopeMiddleware(infoFn RequestInfoFunc) func(http.Handler) http.Handler {
	if infoFn == nil {
		infoFn = DefaultRequestInfo
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, done := NewRequestContext(r.Context(), infoFn(r))
			defer done()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
