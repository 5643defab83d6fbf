package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type Middleware func(http.Handler) http.Handler

// RouteMiddleware groups the per-route-group middleware. Nil entries are skipped.
type RouteMiddleware struct {
	// Session verifies the jwtToken query parameter.
	Session Middleware
	// UserRateLimit runs after Session.
	UserRateLimit Middleware
	// LoginRateLimit guards the unauthenticated login routes.
	LoginRateLimit Middleware
}

// NewRouter mounts every route on r.
func NewRouter(r chi.Router, auth *AuthHandler, crm *CRMHandler, mw RouteMiddleware) chi.Router {
	r.Get("/health", Health)
	r.Get("/platforms", auth.Platforms)
	r.Post("/revoke/{platform}", auth.Revoke)

	r.Group(func(r chi.Router) {
		use(r, mw.LoginRateLimit)
		r.Get("/authorize/{platform}", auth.Authorize)
		r.Get("/oauth-callback", auth.OAuthCallback)
		r.Post("/apiKeyLogin", auth.APIKeyLogin)
	})

	r.Group(func(r chi.Router) {
		use(r, mw.Session, mw.UserRateLimit)
		r.Post("/unAuthorize", auth.UnAuthorize)
		r.Get("/authValidation", auth.AuthValidation)

		r.Get("/contact", crm.FindContact)
		r.Post("/contact", crm.CreateContact)

		r.Get("/callLog", crm.GetCallLog)
		r.Post("/callLog", crm.AddCallLog)
		r.Patch("/callLog", crm.UpdateCallLog)

		r.Post("/messageLog", crm.AddMessageLog)
	})

	return r
}

func use(r chi.Router, mws ...Middleware) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
