package util

import "unicode/utf8"

// Truncate corta s a lo sumo n bytes sin partir una runa UTF-8.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
