package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/auth/tcp", nil)
	r.Host = "forum.example.com"
	require.Equal(t, "http://forum.example.com", BaseURL(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "public.example.com")
	require.Equal(t, "https://public.example.com", BaseURL(r))

	r.Header.Set("X-Forwarded-Proto", "javascript")
	require.Equal(t, "http://public.example.com", BaseURL(r))
}

func TestReadJSON(t *testing.T) {
	var dst map[string]string

	r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"a":"1"}`))
	require.NoError(t, ReadJSON(httptest.NewRecorder(), r, &dst))
	require.Equal(t, "1", dst["a"])

	r = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"a":"1"}{"b":"2"}`))
	require.Error(t, ReadJSON(httptest.NewRecorder(), r, &dst))

	r = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`not json`))
	require.Error(t, ReadJSON(httptest.NewRecorder(), r, &dst))
}
