package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"ann@acme.io":      "a…@a….io",
		" Bob@Example.COM": "b…@e….com",
		"x@y.z":            "x@y.z",
		"no-at-sign":       "***",
		"":                 "",
	}
	for in, want := range cases {
		require.Equal(t, want, MaskEmail(in), in)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 199) + "ñandú"
	out := Truncate(s, 200)
	require.True(t, utf8.ValidString(out))
	require.Equal(t, strings.Repeat("a", 199), out)

	require.Equal(t, "abc", Truncate("abc", 10))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "", Truncate("ñ", 1))
	require.Equal(t, "", Truncate("abc", 0))
}
