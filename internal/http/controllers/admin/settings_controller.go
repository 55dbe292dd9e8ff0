package admin

import (
	"net/http"
	"sort"
	"strings"

	httperrors "github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

// SecretMask reemplaza el valor de los secrets en GET. Un PATCH con la máscara no escribe.
const SecretMask = "********"

type SettingsController struct {
	settings Settings
}

func NewSettingsController(s Settings) *SettingsController {
	return &SettingsController{settings: s}
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "_secret")
}

// Get maneja GET /api/admin/settings: solo keys del namespace, secrets enmascarados.
func (c *SettingsController) Get(w http.ResponseWriter, r *http.Request) {
	all, err := c.settings.All(r.Context())
	if err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	ns := c.settings.Namespace()
	out := make(map[string]string, len(all))
	for k, v := range all {
		if !settings.InNamespace(ns, k) {
			continue
		}
		if isSecretKey(k) && v != "" {
			v = SecretMask
		}
		out[k] = v
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Patch maneja PATCH /api/admin/settings. Body: {"key": "value" | null}; null borra.
func (c *SettingsController) Patch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SettingsController.Patch"))

	var body map[string]*string
	if err := helpers.ReadJSON(w, r, &body); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	ns := c.settings.Namespace()
	set := map[string]string{}
	var del []string
	for k, v := range body {
		if !settings.InNamespace(ns, k) {
			httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("key outside namespace: "+k))
			return
		}
		switch {
		case v == nil:
			del = append(del, k)
		case isSecretKey(k) && *v == SecretMask:
			// sin cambios
		default:
			set[k] = *v
		}
	}
	sort.Strings(del)

	if err := c.settings.Set(ctx, set); err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := c.settings.Delete(ctx, del...); err != nil {
		httperrors.WriteErrorLogged(w, r, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	log.Info("settings saved", logger.Count(len(set)+len(del)))
	helpers.WriteJSON(w, http.StatusOK, map[string]int{"updated": len(set), "deleted": len(del)})
}
