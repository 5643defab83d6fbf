package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/audit"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/redis"
)

const rateLimitWindow = 60 * time.Second

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (redis.LimitResult, error)
}

// UserRateLimitMiddleware throttles each credential across all instances.
// Requests are let through when Redis is unavailable.
type UserRateLimitMiddleware struct {
	limiter Limiter
	limit   int
}

func NewUserRateLimitMiddleware(limiter Limiter, limitPerMinute int) *UserRateLimitMiddleware {
	return &UserRateLimitMiddleware{limiter: limiter, limit: limitPerMinute}
}

func (m *UserRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Check(r.Context(), redis.UserRateLimitKey(claims.ID), m.limit, rateLimitWindow)
		if err != nil {
			log.Warn().Err(err).Str("userId", claims.ID).Msg("redis rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, m.limit, result)

		if !result.Allowed {
			log.Warn().Str("userId", claims.ID).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:     audit.EventRateLimitExceed,
				UserID:   claims.ID,
				Platform: claims.Platform,
			})
			w.Header().Set("Retry-After", retryAfter(result.ResetAt))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result redis.LimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retryAfter(resetAt time.Time) string {
	seconds := int(time.Until(resetAt).Seconds()) + 1
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
