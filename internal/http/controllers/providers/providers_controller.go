// Package providers expone los listados de proveedores y el payload del foro.
package providers

import (
	"context"
	"net/http"

	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
)

// Lister es el ProviderRegistry visto desde HTTP.
type Lister interface {
	ListSummaries(ctx context.Context, role provider.Role, forceFresh bool) ([]provider.Summary, error)
}

type ProvidersController struct {
	lister Lister
}

func NewProvidersController(lister Lister) *ProvidersController {
	return &ProvidersController{lister: lister}
}

// Forum maneja GET /api/oidc/providers.
func (c *ProvidersController) Forum(w http.ResponseWriter, r *http.Request) {
	c.list(w, r, provider.RoleForum, false)
}

// Admin maneja GET /api/admin/oidc/providers[?fresh=1].
func (c *ProvidersController) Admin(w http.ResponseWriter, r *http.Request) {
	fresh := r.URL.Query().Get("fresh")
	c.list(w, r, provider.RoleAdmin, fresh == "1" || fresh == "true")
}

func (c *ProvidersController) list(w http.ResponseWriter, r *http.Request, role provider.Role, fresh bool) {
	out, err := c.lister.ListSummaries(r.Context(), role, fresh)
	if err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	logger.From(r.Context()).Debug("providers listed",
		logger.Layer("controller"), logger.Role(string(role)), logger.Count(len(out)))
	helpers.WriteJSON(w, http.StatusOK, out)
}
