package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/audit"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/util"
)

type contextKey string

const ClaimsContextKey contextKey = "sessionClaims"

// TokenQueryParam carries the session token on every protected route.
const TokenQueryParam = "jwtToken"

func GetClaims(ctx context.Context) *util.SessionClaims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*util.SessionClaims); ok {
		return claims
	}
	return nil
}

// WithClaims is used by tests and by handlers mounted without the middleware.
func WithClaims(ctx context.Context, claims *util.SessionClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

type AuthMiddleware struct {
	signer *util.SessionSigner
}

func NewAuthMiddleware(signer *util.SessionSigner) *AuthMiddleware {
	return &AuthMiddleware{signer: signer}
}

// Handler verifies the session token. It does not load the credential; the
// dispatcher does that per request so deleted credentials are seen at once.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get(TokenQueryParam)
		if token == "" {
			writeError(w, apperrors.NotAuthorized())
			return
		}

		claims, err := m.signer.Parse(token)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("auth middleware: invalid session token")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid session token"},
			})
			writeError(w, apperrors.NotAuthorized())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}
