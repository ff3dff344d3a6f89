package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/deepgram/readme-relay/internal/config"
	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/pkg/httpext"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/deepgram/readme-relay/pkg/ratelimit"
)

func RateLimit(limitKey string, limit config.RateLimit, limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limit.Enabled || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			if !limiter.Allow(r.Context(), ip) {
				logger.Warn(logger.MIDDLEWARE, "Rate limit exceeded for %s on %s", ip, limitKey)
				metrics.RecordRateLimited(limitKey)
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP uses the first X-Forwarded-For hop if behind a proxy, otherwise
// the host part of the remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
