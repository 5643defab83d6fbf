package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/connector"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/middleware"
	"github.com/crmbridge/bridge-server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	dispatcher  *service.Dispatcher
	registry    *connector.Registry
}

func NewAuthHandler(authService *service.AuthService, dispatcher *service.Dispatcher, registry *connector.Registry) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		dispatcher:  dispatcher,
		registry:    registry,
	}
}

// GET /platforms
func (h *AuthHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": h.registry.Platforms(),
	})
}

// GET /authorize/{platform}?hostname=
// Redirects the browser to the CRM consent page.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	authURL, err := h.authService.AuthorizeURL(r.Context(), platform, r.URL.Query().Get("hostname"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// GET /oauth-callback?code=&state=&rcUserNumber=
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		log.Warn().Str("error", errMsg).Msg("oauth error from crm")
		writeError(w, apperrors.ValidationError("Authorization was not granted"))
		return
	}

	result, err := h.authService.OAuthCallback(r.Context(), q.Get("code"), q.Get("state"), q.Get("rcUserNumber"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /apiKeyLogin
func (h *AuthHandler) APIKeyLogin(w http.ResponseWriter, r *http.Request) {
	var params service.APIKeyLoginParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authService.APIKeyLogin(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /unAuthorize?jwtToken=
func (h *AuthHandler) UnAuthorize(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, apperrors.NotAuthorized())
		return
	}

	result, err := h.authService.UnAuthorize(r.Context(), claims.ID, claims.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /authValidation?jwtToken=
func (h *AuthHandler) AuthValidation(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.dispatcher)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.authService.ValidateAuth(r.Context(), sess))
}

// POST /revoke/{platform}
// Called by the CRM when the app is uninstalled on their side.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if err := h.authService.HandleRevocation(r.Context(), platform, r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"successful": true})
}

func resolveSession(r *http.Request, dispatcher *service.Dispatcher) (*service.Session, error) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return nil, apperrors.NotAuthorized()
	}
	return dispatcher.Resolve(r.Context(), claims.ID, claims.Platform)
}
