package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/kiranshivaraju/labubify/internal/api/response"
	"github.com/kiranshivaraju/labubify/internal/cache"
)

const (
	defaultRequestsPerMinute = 10
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window per-client rate limiting via Redis.
// Each transform holds a Replicate prediction, so the limit protects the
// shared upstream quota.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	trusted        []netip.Prefix
}

// NewRateLimit creates a new RateLimit middleware. A nil cache disables
// limiting. Clients are keyed by remote address unless the connection comes
// from one of the trusted proxies, in which case X-Forwarded-For is used.
func NewRateLimit(c cache.Cache, requestsPerMin int, trustedProxies ...netip.Prefix) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, trusted: trustedProxies}
}

// Limit applies rate limiting keyed by client IP.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(clientIP(r, rl.trusted)), rateWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			slog.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateWindow).Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests, "Too many requests. Try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}
