package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/veildata/veil/internal/requestctx"
)

// callerLimiter enforces a global token bucket for the whole process
// plus one bucket per caller identity.
type callerLimiter struct {
	global      *rate.Limiter
	callerRPS   int
	callerBurst int
	mu          sync.Mutex
	callers     map[string]*rate.Limiter
}

// newCallerLimiter builds a limiter. Non-positive globalRPS disables the
// global bucket; non-positive callerRPS disables per-caller buckets.
// Non-positive callerBurst defaults to two seconds' worth.
func newCallerLimiter(globalRPS, callerRPS, callerBurst int) *callerLimiter {
	l := &callerLimiter{
		callerRPS:   callerRPS,
		callerBurst: callerBurst,
		callers:     make(map[string]*rate.Limiter),
	}
	if l.callerBurst <= 0 {
		l.callerBurst = callerRPS * 2
	}
	if globalRPS > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRPS), globalRPS*2)
	}
	return l
}

func (l *callerLimiter) allow(caller string) bool {
	if l.global != nil && !l.global.Allow() {
		return false
	}
	if l.callerRPS <= 0 || caller == "" {
		return true
	}

	l.mu.Lock()
	lim, ok := l.callers[caller]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.callerRPS), l.callerBurst)
		l.callers[caller] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// RateLimitMiddleware returns 429 with a Retry-After header when either
// the global or the caller's bucket is empty.
func RateLimitMiddleware(l *callerLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(requestctx.Caller(r.Context())) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limit_exceeded",
					"message": "request rate limit exceeded, slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
