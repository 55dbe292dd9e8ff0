package admin

import (
	"net/http"

	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
)

type CacheController struct {
	purger Purger
}

func NewCacheController(p Purger) *CacheController {
	return &CacheController{purger: p}
}

// Purge maneja DELETE /api/admin/oidc/cache.
func (c *CacheController) Purge(w http.ResponseWriter, r *http.Request) {
	if err := c.purger.Purge(r.Context()); err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
