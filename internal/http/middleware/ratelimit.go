package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/botdesk/internal/ratelimit"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests on the visitor address, preferring X-Real-Ip set by
// chi's RealIP middleware.
func ByClientIP(prefix string) KeyFunc {
	return func(r *http.Request) string {
		return prefix + ":" + ClientIP(r)
	}
}

// ClientIP returns the best-known address of the caller.
func ClientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limiter's window with 429 Too Many
// Requests and a Retry-After header. Limiter outages let requests through.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Check(r.Context(), key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				if wait := decision.RetryAfter(time.Now()); wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
