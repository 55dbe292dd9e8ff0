// Package admin contiene los controllers de administración (X-Admin-API-Key).
package admin

import (
	"context"

	"github.com/dropDatabas3/tcpoidc/internal/provider"
)

// Purger vacía el cache de listados.
type Purger interface {
	Purge(ctx context.Context) error
}

// Settings es el repositorio de settings con notificación.
type Settings interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Namespace() string
}

// Toggler habilita o deshabilita la extensión.
type Toggler interface {
	Enabled() bool
	SetEnabled(ctx context.Context, on bool) (bool, error)
}

// Controllers agrupa los controllers de admin.
type Controllers struct {
	Settings  *SettingsController
	Extension *ExtensionController
	Cache     *CacheController
}

type Deps struct {
	Settings  Settings
	Extension Toggler
	Purger    Purger
}

func NewControllers(d Deps) *Controllers {
	return &Controllers{
		Settings:  NewSettingsController(d.Settings),
		Extension: NewExtensionController(d.Extension),
		Cache:     NewCacheController(d.Purger),
	}
}

var _ Purger = (*provider.Registry)(nil)
