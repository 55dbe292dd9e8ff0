package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dropDatabas3/tcpoidc/internal/events"
)

// Defaults de la extensión (sin prefijo de namespace).
var extensionDefaults = map[string]string{
	"only_icons":                 "0",
	"update_email_from_provider": "1",
	"popupWidth":                 "580",
	"popupHeight":                "400",
	"fullscreenPopup":            "1",
	"log-oauth-errors":           "0",
}

// Repository envuelve un Store con defaults, lecturas tipadas y notificación de escrituras.
type Repository struct {
	store     Store
	bus       *events.Dispatcher
	namespace string

	mu       sync.RWMutex
	defaults map[string]string
}

type RepositoryDeps struct {
	Store     Store
	Bus       *events.Dispatcher // opcional
	Namespace string
}

func NewRepository(d RepositoryDeps) *Repository {
	r := &Repository{
		store:     d.Store,
		bus:       d.Bus,
		namespace: d.Namespace,
		defaults:  map[string]string{},
	}
	for k, v := range extensionDefaults {
		r.defaults[Key(d.Namespace, k)] = v
	}
	return r
}

// Namespace del que cuelgan las keys de la extensión.
func (r *Repository) Namespace() string { return r.namespace }

// Key arma una key dentro del namespace.
func (r *Repository) Key(parts ...string) string { return Key(r.namespace, parts...) }

// RegisterProviderDefault habilita por default el proveedor name ("<ns>.<name>" = 1).
func (r *Repository) RegisterProviderDefault(name string) {
	r.mu.Lock()
	r.defaults[r.Key(name)] = "1"
	r.mu.Unlock()
}

// Get lee del store y cae al default registrado.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := r.store.Get(ctx, key)
	if err != nil || ok {
		return v, ok, err
	}
	r.mu.RLock()
	v, ok = r.defaults[key]
	r.mu.RUnlock()
	return v, ok, nil
}

// String retorna "" si la key no existe.
func (r *Repository) String(ctx context.Context, key string) (string, error) {
	v, _, err := r.Get(ctx, key)
	return v, err
}

// Bool interpreta "1", "true", "yes", "on" como verdadero.
func (r *Repository) Bool(ctx context.Context, key string) (bool, error) {
	v, _, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ParseBool(v), nil
}

// Int retorna def si el valor no es numérico.
func (r *Repository) Int(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, perr := strconv.Atoi(strings.TrimSpace(v))
	if perr != nil {
		return def, nil
	}
	return n, nil
}

// All retorna defaults pisados por los valores guardados.
func (r *Repository) All(ctx context.Context) (map[string]string, error) {
	stored, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make(map[string]string, len(r.defaults)+len(stored))
	for k, v := range r.defaults {
		out[k] = v
	}
	r.mu.RUnlock()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// Set escribe y, una vez confirmada la escritura, publica SettingsSaved.
func (r *Repository) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.store.Set(ctx, values); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	r.publish(ctx, sortedKeys(values))
	return nil
}

// Delete borra y publica SettingsSaved con las keys borradas.
func (r *Repository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("settings: delete: %w", err)
	}
	r.publish(ctx, keys)
	return nil
}

func (r *Repository) publish(ctx context.Context, keys []string) {
	if r.bus != nil {
		r.bus.PublishSettingsSaved(ctx, events.SettingsSaved{Keys: keys})
	}
}

// ParseBool acepta los formatos que guardan los paneles de administración.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
