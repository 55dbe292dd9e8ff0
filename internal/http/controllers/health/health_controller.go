// Package health expone GET /healthz.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/tcpoidc/internal/http/helpers"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

// Check es un probe de un componente (cache, base de datos).
type Check func(ctx context.Context) error

type HealthController struct {
	version string
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthController(version string, checks map[string]Check) *HealthController {
	return &HealthController{version: version, checks: checks, timeout: 2 * time.Second}
}

type response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// Healthz: 200 si todo responde, 503 si algún componente falla.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	res := response{Status: "ok", Version: c.version, Components: map[string]string{}}
	for _, n := range names {
		if err := c.checks[n](ctx); err != nil {
			res.Status = "unavailable"
			res.Components[n] = "down"
			logger.From(ctx).Warn("health check failed", logger.Component(n), logger.Err(err))
			continue
		}
		res.Components[n] = "up"
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, status, res)
}
