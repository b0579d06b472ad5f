package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultLimiterCleanupInterval is how often idle client limiters are scanned.
const DefaultLimiterCleanupInterval = time.Minute

// RateLimiter provides per-client token bucket rate limiting.
type RateLimiter struct {
	clients         sync.Map // map[string]*clientLimiter
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	logger          *zap.Logger
	onReject        func(client string)
	now             func() time.Time
	done            chan struct{}
	stopOnce        sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRejectHook is called with the client key of every rejected request.
func WithRejectHook(fn func(client string)) RateLimiterOption {
	return func(rl *RateLimiter) { rl.onReject = fn }
}

// WithCleanupInterval overrides DefaultLimiterCleanupInterval.
func WithCleanupInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.cleanupInterval = d
		}
	}
}

// NewRateLimiter creates a limiter allowing requestsPerSec per client with the
// given burst. A non-positive rate disables limiting. Call Stop to end the
// cleanup goroutine.
func NewRateLimiter(requestsPerSec float64, burst int, logger *zap.Logger, opts ...RateLimiterOption) *RateLimiter {
	limit := rate.Limit(requestsPerSec)
	if requestsPerSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	rl := &RateLimiter{
		limit:           limit,
		burst:           burst,
		cleanupInterval: DefaultLimiterCleanupInterval,
		logger:          logger.Named("ratelimit"),
		now:             time.Now,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	go rl.cleanup()
	return rl
}

// Middleware rejects requests over the client's rate with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientKey(r)
		if rl.Allow(client) {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Debug("Rate limit exceeded", zap.String("client", client), zap.String("path", r.URL.Path))
		if rl.onReject != nil {
			rl.onReject(client)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "rate_limited",
			"message": "too many requests",
		})
	})
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.getLimiter(client).AllowN(rl.now(), 1)
}

func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	now := rl.now().UnixNano()
	if val, ok := rl.clients.Load(client); ok {
		c := val.(*clientLimiter)
		c.lastSeen.Store(now)
		return c.limiter
	}

	c := &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	c.lastSeen.Store(now)
	actual, _ := rl.clients.LoadOrStore(client, c)
	return actual.(*clientLimiter).limiter
}

func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit == rate.Inf || rl.limit <= 0 {
		return 1
	}
	secs := int(1/float64(rl.limit)) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.removeIdleClients()
		}
	}
}

// removeIdleClients drops limiters not seen for two cleanup intervals.
func (rl *RateLimiter) removeIdleClients() int {
	threshold := rl.now().Add(-2 * rl.cleanupInterval).UnixNano()
	removed := 0

	rl.clients.Range(func(key, value any) bool {
		if value.(*clientLimiter).lastSeen.Load() < threshold {
			rl.clients.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// ActiveClients returns the number of tracked clients.
func (rl *RateLimiter) ActiveClients() int {
	count := 0
	rl.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// ClientKey identifies the caller: the first X-Forwarded-For hop when present,
// otherwise the remote host without its port.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
