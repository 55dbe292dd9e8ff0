package admin

import (
	"net/http"

	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

type ExtensionController struct {
	state Toggler
}

func NewExtensionController(t Toggler) *ExtensionController {
	return &ExtensionController{state: t}
}

type extensionResponse struct {
	Enabled bool `json:"enabled"`
	Changed bool `json:"changed"`
}

// Enable maneja POST /api/admin/extension/enable.
func (c *ExtensionController) Enable(w http.ResponseWriter, r *http.Request) { c.set(w, r, true) }

// Disable maneja POST /api/admin/extension/disable.
func (c *ExtensionController) Disable(w http.ResponseWriter, r *http.Request) { c.set(w, r, false) }

func (c *ExtensionController) set(w http.ResponseWriter, r *http.Request, on bool) {
	changed, err := c.state.SetEnabled(r.Context(), on)
	if err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if changed {
		logger.From(r.Context()).Info("extension toggled",
			logger.Layer("controller"), logger.Bool("enabled", on))
	}
	helpers.WriteJSON(w, http.StatusOK, extensionResponse{Enabled: c.state.Enabled(), Changed: changed})
}
