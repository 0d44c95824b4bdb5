package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"timeoff/internal/platform/ratelimit"
	"timeoff/internal/transport/http/api"
)

// RateLimit applies a sliding window per operation and client address.
// Denied requests get 429 before the handler runs.
func RateLimit(limiter *ratelimit.Limiter, operation string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key(operation, GetClientIP(r))
			d := limiter.Check(r.Context(), key, limit, window)
			if !enforce(w, r, key, d) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIBudget is the general per-minute allowance per client address. It runs
// ahead of authentication, so every caller behind one address shares it.
func APIBudget(limiter *ratelimit.Limiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key("api", GetClientIP(r))
			d := limiter.CheckFixed(r.Context(), key, perMinute, time.Minute)
			if !enforce(w, r, key, d) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enforce(w http.ResponseWriter, r *http.Request, key string, d ratelimit.Decision) bool {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if d.Allowed {
		return true
	}
	retry := int(math.Ceil(d.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	slog.Warn("rate limit exceeded",
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
		"limit", d.Limit,
	)
	api.FailError(w, ratelimit.ErrTooManyRequests, GetRequestID(r.Context()))
	return false
}
