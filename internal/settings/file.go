package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/tcpoidc/internal/util/atomicwrite"
)

// File persiste settings como un map YAML plano en disco.
// Las escrituras pasan por atomicwrite.
type File struct {
	path string
	mu   sync.RWMutex
	data map[string]string
}

// NewFile carga path; si no existe arranca vacío y lo crea en el primer Set.
func NewFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("settings: abs path: %w", err)
	}
	f := &File{path: abs, data: map[string]string{}}
	if _, err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path retorna la ruta absoluta del archivo.
func (f *File) Path() string { return f.path }

// Reload relee el archivo y retorna las keys cuyo valor cambió (incluye altas y bajas).
func (f *File) Reload() ([]string, error) {
	next, err := readYAMLMap(f.path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	prev := f.data
	f.data = next
	f.mu.Unlock()

	changed := map[string]string{}
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			changed[k] = v
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed[k] = ""
		}
	}
	return sortedKeys(changed), nil
}

func readYAMLMap(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return out, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) All(context.Context) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return out, nil
}

func (f *File) Set(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make(map[string]string, len(f.data)+len(values))
	for k, v := range f.data {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	if err := f.write(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make(map[string]string, len(f.data))
	for k, v := range f.data {
		next[k] = v
	}
	for _, k := range keys {
		delete(next, k)
	}
	if err := f.write(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

func (f *File) write(m map[string]string) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := atomicwrite.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("settings: write %s: %w", f.path, err)
	}
	return nil
}
