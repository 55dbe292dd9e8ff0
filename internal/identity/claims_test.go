package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubjectPrecedence(t *testing.T) {
	require.Equal(t, "s", Claims{"sub": "s", "id": "i", "client_id": "c"}.Subject())
	require.Equal(t, "i", Claims{"sub": "", "id": "i", "client_id": "c"}.Subject())
	require.Equal(t, "c", Claims{"client_id": "c"}.Subject())
	require.Equal(t, "", Claims{"email": "x@y"}.Subject())
}

func TestNumericClaimsFromJSON(t *testing.T) {
	var c Claims
	require.NoError(t, json.Unmarshal([]byte(`{"id": 12345, "name": "  Ann  ", "admin": true}`), &c))
	require.Equal(t, "12345", c.Subject())
	require.Equal(t, "Ann", c.String("name"))
	require.Equal(t, "", c.String("admin"))
	require.Equal(t, "Ann", c.FirstString("nickname", "name"))
}

func TestCloneIsIndependent(t *testing.T) {
	c := Claims{"a": "1"}
	cp := c.Clone()
	cp["b"] = "2"
	_, ok := c["b"]
	require.False(t, ok)
}
