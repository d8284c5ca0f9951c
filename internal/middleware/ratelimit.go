package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfredchat/alfred/internal/app/metrics"
	"github.com/alfredchat/alfred/internal/errors"
	internalhttputil "github.com/alfredchat/alfred/internal/httputil"
	"github.com/alfredchat/alfred/pkg/logger"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-caller rate limiting
type RateLimiter struct {
	scope      string
	limiters   map[string]*limiterEntry
	mu         sync.Mutex
	perMinute  int
	burst      int
	trustProxy bool
	logger     *logger.Logger
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per caller.
// With trustProxy the right-most X-Forwarded-For address, the one appended by
// the fronting proxy, identifies anonymous callers. Earlier entries are client
// supplied.
func NewRateLimiter(scope string, perMinute, burst int, trustProxy bool, log *logger.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		scope:      scope,
		limiters:   make(map[string]*limiterEntry),
		perMinute:  perMinute,
		burst:      burst,
		trustProxy: trustProxy,
		logger:     log,
		now:        time.Now,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = rl.now()
	return e.limiter.AllowN(e.lastSeen, 1)
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Authenticated callers are limited per user, others per address.
		key := logger.GetUserID(r.Context())
		if key == "" {
			key = rl.clientIP(r)
		}

		if !rl.allow(key) {
			metrics.RecordRateLimited(rl.scope)
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"scope":  rl.scope,
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			internalhttputil.WriteServiceError(w, errors.RateLimitExceeded(rl.perMinute, "1m"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if ip := lastForwarded(r.Header.Values("X-Forwarded-For")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func lastForwarded(values []string) string {
	for i := len(values) - 1; i >= 0; i-- {
		hops := strings.Split(values[i], ",")
		for j := len(hops) - 1; j >= 0; j-- {
			if ip := strings.TrimSpace(hops[j]); ip != "" {
				return ip
			}
		}
	}
	return ""
}

// Cleanup removes limiters idle for longer than maxIdle and returns how many were dropped.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Size reports the number of tracked callers.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
