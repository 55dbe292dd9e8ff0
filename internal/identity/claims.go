// Package identity modela los claims devueltos por el endpoint userinfo.
package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Claims es el JSON de userinfo tal cual llegó. Es de solo lectura una vez obtenido.
type Claims map[string]any

// String retorna el claim como string recortado; números se formatean, el resto da "".
func (c Claims) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return ""
	}
}

// FirstString retorna el primer claim no vacío en orden de keys.
func (c Claims) FirstString(keys ...string) string {
	for _, k := range keys {
		if v := c.String(k); v != "" {
			return v
		}
	}
	return ""
}

// Subject es el identificador canónico: sub, luego id, luego client_id.
func (c Claims) Subject() string {
	return c.FirstString("sub", "id", "client_id")
}

// Clone copia superficial; los valores anidados se comparten.
func (c Claims) Clone() map[string]any {
	out := make(map[string]any, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}
