package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/dropDatabas3/tcpoidc/internal/http/errors"
)

const AdminKeyHeader = "X-Admin-API-Key"

// RequireAdminKey compara X-Admin-API-Key en tiempo constante.
// Sin key configurada, las rutas admin quedan cerradas.
func RequireAdminKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminKeyHeader)
			if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnabledFunc reporta si la extensión está habilitada.
type EnabledFunc func() bool

// RequireEnabled responde 404 mientras la extensión esté deshabilitada.
func RequireEnabled(enabled EnabledFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled != nil && !enabled() {
				errors.WriteError(w, errors.ErrRouteNotFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
