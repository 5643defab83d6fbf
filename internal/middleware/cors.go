package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware admits the configured origins, typically the browser
// extension origin and the hosted widget page.
type CORSMiddleware struct {
	allowed map[string]struct{}
}

func NewCORSMiddleware(origins []string) *CORSMiddleware {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &CORSMiddleware{allowed: allowed}
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && m.allows(origin) {
			header := w.Header()
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
			header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			header.Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allows(origin string) bool {
	if _, ok := m.allowed["*"]; ok {
		return true
	}
	_, ok := m.allowed[origin]
	return ok
}
