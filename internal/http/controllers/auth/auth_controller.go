// Package auth expone GET /auth/{provider}: inicio y callback del authorization-code grant.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tcpoidc/internal/authflow"
	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
)

// Flow es lo que el controller necesita del AuthFlowController.
type Flow interface {
	Handle(ctx context.Context, req authflow.Request) (authflow.Result, error)
	CookieName() string
}

type AuthController struct {
	flow Flow
}

func NewAuthController(flow Flow) *AuthController {
	return &AuthController{flow: flow}
}

// Login maneja GET /auth/{provider}. La misma ruta es el redirect URI del proveedor.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthController.Login"), logger.Provider(name))

	req := authflow.Request{
		Provider: name,
		BaseURL:  helpers.BaseURL(r),
		Query:    r.URL.Query(),
	}
	if ck, err := r.Cookie(c.flow.CookieName()); err == nil {
		req.StateCookie = ck.Value
	}

	res, err := c.flow.Handle(ctx, req)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotFound) {
			log.Debug("unknown or disabled provider")
			httperrors.WriteError(w, httperrors.ErrProviderNotFound)
			return
		}
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	for _, ck := range res.Cookies {
		http.SetCookie(w, ck)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Location", res.Location)
	w.WriteHeader(res.Status)
}
