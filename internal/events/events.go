// Package events es el bus in-process de notificaciones del host.
// Los handlers corren sincrónicos, en orden de registro; sus errores se loguean.
package events

import (
	"context"
	"sync"

	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

// SettingsSaved se publica después de que una escritura de settings se confirmó.
type SettingsSaved struct {
	Keys []string
}

// ExtensionToggled se publica al habilitar o deshabilitar la extensión.
type ExtensionToggled struct {
	Enabled bool
}

type (
	SettingsSavedHandler    func(ctx context.Context, ev SettingsSaved) error
	ExtensionToggledHandler func(ctx context.Context, ev ExtensionToggled) error
)

// Dispatcher es seguro para uso concurrente.
type Dispatcher struct {
	mu       sync.RWMutex
	settings []SettingsSavedHandler
	toggles  []ExtensionToggledHandler
}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

func (d *Dispatcher) OnSettingsSaved(h SettingsSavedHandler) {
	d.mu.Lock()
	d.settings = append(d.settings, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnExtensionToggled(h ExtensionToggledHandler) {
	d.mu.Lock()
	d.toggles = append(d.toggles, h)
	d.mu.Unlock()
}

func (d *Dispatcher) PublishSettingsSaved(ctx context.Context, ev SettingsSaved) {
	d.mu.RLock()
	hs := append([]SettingsSavedHandler(nil), d.settings...)
	d.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			logger.From(ctx).Warn("settings.saved handler failed",
				logger.Component("events"), logger.Count(len(ev.Keys)), logger.Err(err))
		}
	}
}

func (d *Dispatcher) PublishExtensionToggled(ctx context.Context, ev ExtensionToggled) {
	d.mu.RLock()
	hs := append([]ExtensionToggledHandler(nil), d.toggles...)
	d.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			logger.From(ctx).Warn("extension.toggled handler failed",
				logger.Component("events"), logger.Bool("enabled", ev.Enabled), logger.Err(err))
		}
	}
}
