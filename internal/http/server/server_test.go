package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tcpoidc/internal/config"
	mw "github.com/dropDatabas3/tcpoidc/internal/http/middlewares"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
)

const adminKey = "admin-key-for-tests"

func newIdP(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "ABC123" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-xyz","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/api/oidc/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-xyz" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub": "u-42", "email": "ann@acme.io", "nickname": "ann", "picture": "https://cdn.acme.io/a.png",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, seed map[string]string) *App {
	t.Helper()
	cfg, err := config.LoadOrDefault("")
	require.NoError(t, err)
	cfg.App.Env = "dev"
	cfg.Server.AdminAPIKey = adminKey
	cfg.Server.PublicURL = ""
	cfg.Settings.Driver = "memory"
	cfg.Settings.Seed = seed
	cfg.Cache.Kind = "memory"
	cfg.Storage.AccountsDriver = "memory"
	cfg.OAuth.StateSecret = "state-secret-state-secret-state-secret"
	cfg.Session.Secret = "session-secret-session-secret-0123"
	cfg.Rate.Enabled = false

	app, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func configured(base string) map[string]string {
	return map[string]string{
		"tcp-oidc.tcp.url":           base,
		"tcp-oidc.tcp.client_id":     "abc",
		"tcp-oidc.tcp.client_secret": "shh-secret",
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func asAdmin(r *http.Request) { r.Header.Set(mw.AdminKeyHeader, adminKey) }

func TestAuthUnknownProviderIs404(t *testing.T) {
	app := newApp(t, nil)
	rec := do(t, app.Handler, http.MethodGet, "/auth/unknown-provider", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PROVIDER_NOT_FOUND")
}

func TestAuthStartRedirectsWithScope(t *testing.T) {
	app := newApp(t, configured("https://idp.example"))

	rec := do(t, app.Handler, http.MethodGet, "/auth/tcp", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "https://idp.example/api/oidc/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
	require.Equal(t, "openid profile email", loc.Query().Get("scope"))
	require.Equal(t, "abc", loc.Query().Get("client_id"))
	require.NotContains(t, rec.Header().Get("Location"), "shh-secret")
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestAuthCallbackWithoutSecretIsConfigurationError(t *testing.T) {
	seed := configured("https://idp.example")
	delete(seed, "tcp-oidc.tcp.client_secret")
	app := newApp(t, seed)

	rec := do(t, app.Handler, http.MethodGet, "/auth/tcp?code=ABC123", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/?oauth_error=configuration", rec.Header().Get("Location"))
}

func TestAuthFullFlowSignsIn(t *testing.T) {
	idp := newIdP(t)
	app := newApp(t, configured(idp.URL))

	start := do(t, app.Handler, http.MethodGet, "/auth/tcp", "")
	require.Equal(t, http.StatusFound, start.Code)
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	cookies := start.Result().Cookies()
	require.Len(t, cookies, 1)

	cb := do(t, app.Handler, http.MethodGet, "/auth/tcp?code=ABC123&state="+url.QueryEscape(state), "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookies[0].Name, Value: cookies[0].Value})
	})
	require.Equal(t, http.StatusFound, cb.Code)
	require.Equal(t, "/", cb.Header().Get("Location"))

	var session bool
	for _, c := range cb.Result().Cookies() {
		if c.Name == app.Config.Session.Cookie && c.Value != "" {
			session = true
		}
	}
	require.True(t, session)

	acc, err := app.Accounts.FindByLogin(context.Background(), "tcp", "u-42")
	require.NoError(t, err)
	require.Equal(t, "ann@acme.io", acc.Email)
	require.Equal(t, "ann", acc.Username)
}

func TestAuthCallbackWithForgedStateFails(t *testing.T) {
	idp := newIdP(t)
	app := newApp(t, configured(idp.URL))

	rec := do(t, app.Handler, http.MethodGet, "/auth/tcp?code=ABC123&state=forged", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/?oauth_error=callback"))
	require.NotContains(t, loc, "at-xyz")
}

func forumList(t *testing.T, h http.Handler) []provider.Summary {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/api/oidc/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []provider.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAdminSettingsWritePurgesProviderCache(t *testing.T) {
	app := newApp(t, configured("https://idp.example"))

	require.Len(t, forumList(t, app.Handler), 1)
	cached, err := app.Cache.Get(context.Background(), app.Registry.CacheKey(provider.RoleForum))
	require.NoError(t, err)
	require.Contains(t, cached, `"tcp"`)

	rec := do(t, app.Handler, http.MethodPatch, "/api/admin/settings", `{"tcp-oidc.tcp":"0"}`, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, forumList(t, app.Handler))
	cached, err = app.Cache.Get(context.Background(), app.Registry.CacheKey(provider.RoleForum))
	require.NoError(t, err)
	require.Equal(t, "[]", cached)

	rec = do(t, app.Handler, http.MethodGet, "/api/admin/oidc/providers", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	var admin []provider.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &admin))
	require.Len(t, admin, 1)
	require.Equal(t, "tcp", admin[0].Name)
}

func TestAdminSettingsMasksSecretsAndRejectsForeignKeys(t *testing.T) {
	app := newApp(t, configured("https://idp.example"))

	rec := do(t, app.Handler, http.MethodGet, "/api/admin/settings", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "shh-secret")
	var all map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Equal(t, "********", all["tcp-oidc.tcp.client_secret"])
	require.Equal(t, "580", all["tcp-oidc.popupWidth"])

	// la máscara no pisa el secret guardado
	rec = do(t, app.Handler, http.MethodPatch, "/api/admin/settings", `{"tcp-oidc.tcp.client_secret":"********"}`, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	v, err := app.Settings.String(context.Background(), "tcp-oidc.tcp.client_secret")
	require.NoError(t, err)
	require.Equal(t, "shh-secret", v)

	rec = do(t, app.Handler, http.MethodPatch, "/api/admin/settings", `{"other-ext.key":"1"}`, asAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app.Handler, http.MethodGet, "/api/admin/settings", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtensionDisableHidesForumRoutes(t *testing.T) {
	app := newApp(t, configured("https://idp.example"))

	rec := do(t, app.Handler, http.MethodGet, "/api/forum", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	for _, k := range []string{"tcp-oidc", "tcp-oidc.only_icons", "tcp-oidc.popupWidth", "tcp-oidc.popupHeight", "tcp-oidc.fullscreenPopup"} {
		require.Contains(t, payload, k)
	}
	require.Equal(t, "580", string(payload["tcp-oidc.popupWidth"]))

	rec = do(t, app.Handler, http.MethodPost, "/api/admin/extension/disable", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"changed":true`)

	require.Equal(t, http.StatusNotFound, do(t, app.Handler, http.MethodGet, "/api/forum", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, app.Handler, http.MethodGet, "/auth/tcp", "").Code)

	rec = do(t, app.Handler, http.MethodPost, "/api/admin/extension/enable", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, forumList(t, app.Handler), 1)
}

func TestAdminCachePurgeAndHealth(t *testing.T) {
	app := newApp(t, nil)
	require.Equal(t, http.StatusNoContent, do(t, app.Handler, http.MethodDelete, "/api/admin/oidc/cache", "", asAdmin).Code)

	rec := do(t, app.Handler, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cache":"up"`)

	require.Equal(t, http.StatusNotFound, do(t, app.Handler, http.MethodGet, "/nope", "").Code)
}
