// Package util tiene helpers chicos sin dependencias del dominio.
package util

import "strings"

// MaskEmail deja primera letra del usuario y del dominio: "ann@acme.io" -> "a…@a….io".
// Para logs; nunca para comparar.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		return "***"
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}
