// Package router arma la tabla de rutas chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/admin"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/auth"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/health"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/providers"
	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	mw "github.com/dropDatabas3/tcpoidc/internal/http/middlewares"
	"github.com/dropDatabas3/tcpoidc/internal/rate"
)

const authRoute = "/auth/{provider}"

type Deps struct {
	Auth      *auth.AuthController
	Providers *providers.ProvidersController
	Forum     *providers.ForumController
	Admin     *admin.Controllers
	Health    *health.HealthController
	// Metrics es el handler de /metrics; nil no registra la ruta.
	Metrics http.Handler

	AdminAPIKey string
	Enabled     mw.EnabledFunc
	// Limiter opcional para /auth/{provider}.
	Limiter rate.Limiter
	// TrustedProxies cuyo X-Forwarded-For se usa como IP del cliente.
	TrustedProxies mw.TrustedProxies
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// ===== infra =====
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ===== login =====
	if d.Auth != nil {
		r.With(
			mw.WithNoStore(),
			mw.RequireEnabled(d.Enabled),
			mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.Limiter, Label: authRoute, TrustedProxies: d.TrustedProxies}),
		).Get(authRoute, d.Auth.Login)
	}

	// ===== foro =====
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireEnabled(d.Enabled))
		if d.Providers != nil {
			r.Get("/api/oidc/providers", d.Providers.Forum)
		}
		if d.Forum != nil {
			r.Get("/api/forum", d.Forum.Payload)
		}
	})

	// ===== admin =====
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.RequireAdminKey(d.AdminAPIKey))
		if d.Providers != nil {
			r.Get("/oidc/providers", d.Providers.Admin)
		}
		if a := d.Admin; a != nil {
			r.Delete("/oidc/cache", a.Cache.Purge)
			r.Get("/settings", a.Settings.Get)
			r.Patch("/settings", a.Settings.Patch)
			r.Post("/extension/enable", a.Extension.Enable)
			r.Post("/extension/disable", a.Extension.Disable)
		}
	})

	return r
}
