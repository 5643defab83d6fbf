package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/audit"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/redis"
)

// IPRateLimitMiddleware throttles unauthenticated login routes per client IP.
// Unlike the per-user limiter it rejects requests when Redis is unavailable.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	route   string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, route string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		route:   route,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		result, err := m.limiter.Check(r.Context(), redis.IPRateLimitKey(m.route, ip), m.limit, m.window)
		if err != nil {
			log.Error().Err(err).Str("route", m.route).Msg("ip rate limit check failed")
			writeError(w, apperrors.Internal("Rate limiter unavailable").WithCause(err))
			return
		}

		if !result.Allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"route": m.route},
			})
			w.Header().Set("Retry-After", retryAfter(result.ResetAt))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
