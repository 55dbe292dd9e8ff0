// Package extension guarda si la extensión OIDC está habilitada en el host.
package extension

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dropDatabas3/tcpoidc/internal/events"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

// storeKey vive fuera del namespace: habilitar no es una escritura de settings de la extensión.
func storeKey(namespace string) string { return "extensions." + namespace + ".enabled" }

// State es el flag enabled/disabled persistido en el SettingsStore.
type State struct {
	namespace string
	store     settings.Store
	bus       *events.Dispatcher
	def       bool
	enabled   atomic.Bool
	// mu serializa escrituras y recargas del flag.
	mu sync.Mutex
}

type StateDeps struct {
	Namespace string
	Store     settings.Store
	Bus       *events.Dispatcher
	// Default se usa si el store no tiene valor guardado.
	Default bool
}

// NewState lee el valor persistido (o Default). Con Bus, recarga el flag cuando
// llega un SettingsSaved con su clave (p.ej. el archivo se editó a mano).
func NewState(ctx context.Context, d StateDeps) (*State, error) {
	s := &State{namespace: d.Namespace, store: d.Store, bus: d.Bus, def: d.Default}
	on, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.enabled.Store(on)
	if d.Bus != nil {
		d.Bus.OnSettingsSaved(s.onSettingsSaved)
	}
	return s, nil
}

func (s *State) load(ctx context.Context) (bool, error) {
	v, ok, err := s.store.Get(ctx, storeKey(s.namespace))
	if err != nil {
		return false, fmt.Errorf("extension: read state: %w", err)
	}
	if !ok {
		return s.def, nil
	}
	return settings.ParseBool(v), nil
}

func (s *State) onSettingsSaved(ctx context.Context, ev events.SettingsSaved) error {
	if !slices.Contains(ev.Keys, storeKey(s.namespace)) {
		return nil
	}

	s.mu.Lock()
	on, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := s.enabled.Swap(on) != on
	s.mu.Unlock()

	if changed {
		s.announce(ctx, on, "reloaded")
	}
	return nil
}

func (s *State) Enabled() bool { return s.enabled.Load() }

// SetEnabled persiste y publica ExtensionToggled solo si el valor cambió.
func (s *State) SetEnabled(ctx context.Context, on bool) (changed bool, err error) {
	s.mu.Lock()
	if s.enabled.Load() == on {
		s.mu.Unlock()
		return false, nil
	}
	v := "0"
	if on {
		v = "1"
	}
	if err := s.store.Set(ctx, map[string]string{storeKey(s.namespace): v}); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("extension: save state: %w", err)
	}
	s.enabled.Store(on)
	s.mu.Unlock()

	s.announce(ctx, on, "toggled")
	return true, nil
}

func (s *State) announce(ctx context.Context, on bool, how string) {
	logger.From(ctx).Info("extension "+how,
		logger.Component("extension"), logger.Bool("enabled", on))
	if s.bus != nil {
		s.bus.PublishExtensionToggled(ctx, events.ExtensionToggled{Enabled: on})
	}
}
