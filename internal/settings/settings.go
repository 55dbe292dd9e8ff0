// Package settings es el SettingsStore: key/value de strings namespaced por extensión.
//
// Las keys siguen el formato "<namespace>.<parte>[.<parte>]", por ejemplo
// "tcp-oidc.tcp.client_secret" o "tcp-oidc.only_icons".
package settings

import (
	"context"
	"strings"
)

// Reader es la vista de solo lectura que consumen provider, oauth y enrich.
type Reader interface {
	// Get retorna ok=false si la key no está definida.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Store agrega escritura. Set aplica todos los valores o ninguno.
type Store interface {
	Reader
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Key arma "<namespace>.<parts...>".
func Key(namespace string, parts ...string) string {
	return strings.Join(append([]string{namespace}, parts...), ".")
}

// InNamespace reporta si key es el namespace o cuelga de él.
func InNamespace(namespace, key string) bool {
	return key == namespace || strings.HasPrefix(key, namespace+".")
}

// sortedKeys para publicar eventos con orden estable.
func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}
