package provider

import (
	"context"

	"github.com/dropDatabas3/tcpoidc/internal/events"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

// Purger es lo que el Invalidator necesita del Registry.
type Purger interface {
	Purge(ctx context.Context) error
}

// Invalidator purga los listados cacheados cuando cambian settings del namespace
// o se habilita/deshabilita la extensión.
type Invalidator struct {
	purger    Purger
	namespace string
}

func NewInvalidator(p Purger, namespace string) *Invalidator {
	return &Invalidator{purger: p, namespace: namespace}
}

// Subscribe engancha el Invalidator al bus del host.
func (inv *Invalidator) Subscribe(bus *events.Dispatcher) {
	bus.OnSettingsSaved(inv.OnSettingsSaved)
	bus.OnExtensionToggled(inv.OnExtensionToggled)
}

// OnSettingsSaved purga si alguna key pertenece al namespace. Keys ajenas no hacen nada.
func (inv *Invalidator) OnSettingsSaved(ctx context.Context, ev events.SettingsSaved) error {
	for _, k := range ev.Keys {
		if settings.InNamespace(inv.namespace, k) {
			logger.From(ctx).Debug("purging provider summaries",
				logger.Component("provider.invalidator"), logger.SettingKey(k))
			return inv.purger.Purge(ctx)
		}
	}
	return nil
}

// OnExtensionToggled purga siempre.
func (inv *Invalidator) OnExtensionToggled(ctx context.Context, ev events.ExtensionToggled) error {
	logger.From(ctx).Debug("purging provider summaries",
		logger.Component("provider.invalidator"), logger.Bool("enabled", ev.Enabled))
	return inv.purger.Purge(ctx)
}
