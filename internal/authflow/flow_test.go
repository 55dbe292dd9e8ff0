package authflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tcpoidc/internal/accounts"
	"github.com/dropDatabas3/tcpoidc/internal/enrich"
	"github.com/dropDatabas3/tcpoidc/internal/oauth"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
	"github.com/dropDatabas3/tcpoidc/internal/registration"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

const ns = "tcp-oidc"

type idp struct {
	srv        *httptest.Server
	tokenCalls int32
	userinfo   map[string]any
}

func newIdP(t *testing.T) *idp {
	t.Helper()
	p := &idp{userinfo: map[string]any{"sub": "u-1", "email": "ann@acme.io", "nickname": "ann"}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.tokenCalls, 1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "ABC123" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/api/oidc/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(p.userinfo)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

type fixture struct {
	ctl      *Controller
	store    *settings.Memory
	accounts *accounts.Memory
	states   *StateSigner
}

func newFixture(t *testing.T, seed map[string]string, verify bool) *fixture {
	t.Helper()
	store := settings.NewMemory(seed)
	repo := settings.NewRepository(settings.RepositoryDeps{Store: store, Namespace: ns})
	repo.RegisterProviderDefault("tcp")

	reg := provider.NewRegistry(provider.RegistryDeps{Namespace: ns})
	d, err := provider.NewGeneric(provider.Spec{Name: "tcp", Icon: "tcp-text"}, repo, ns)
	require.NoError(t, err)
	require.NoError(t, reg.Register(d))

	accts := accounts.NewMemory()
	states, err := NewStateSigner("test-secret-test-secret-test-secret", time.Minute)
	require.NoError(t, err)

	ctl, err := New(Deps{
		Providers:   reg,
		Clients:     oauth.NewFactory(oauth.FactoryDeps{Settings: repo, Namespace: ns, Timeout: 5 * time.Second}),
		Enricher:    enrich.NewPipeline(enrich.PipelineDeps{Settings: repo, Namespace: ns, Groups: accts}),
		Registrar:   accounts.NewService(accounts.ServiceDeps{Store: accts, Settings: repo, Namespace: ns}),
		Settings:    repo,
		Namespace:   ns,
		States:      states,
		VerifyState: verify,
	})
	require.NoError(t, err)
	return &fixture{ctl: ctl, store: store, accounts: accts, states: states}
}

func configured(base string) map[string]string {
	return map[string]string{
		"tcp-oidc.tcp.url":           base,
		"tcp-oidc.tcp.client_id":     "abc",
		"tcp-oidc.tcp.client_secret": "shh",
	}
}

func TestStartRedirectsToAuthorize(t *testing.T) {
	f := newFixture(t, configured("https://idp.example"), true)

	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum.example", Query: url.Values{}})
	require.NoError(t, err)
	require.Equal(t, StateRedirecting, res.State)
	require.Equal(t, http.StatusFound, res.Status)

	u, err := url.Parse(res.Location)
	require.NoError(t, err)
	require.Equal(t, "idp.example", u.Host)
	require.Equal(t, "/api/oidc/authorize", u.Path)
	require.Equal(t, "openid profile email", u.Query().Get("scope"))
	require.Equal(t, "https://forum.example/auth/tcp", u.Query().Get("redirect_uri"))
	require.NotContains(t, res.Location, "shh")

	require.Len(t, res.Cookies, 1)
	require.True(t, res.Cookies[0].HttpOnly)
	require.True(t, res.Cookies[0].Secure)
	_, err = f.states.Verify(u.Query().Get("state"), "tcp", res.Cookies[0].Value)
	require.NoError(t, err)
}

func TestUnknownAndDisabledProviderAreNotFound(t *testing.T) {
	f := newFixture(t, configured("https://idp.example"), true)

	_, err := f.ctl.Handle(context.Background(), Request{Provider: "unknown-provider", BaseURL: "https://forum"})
	require.ErrorIs(t, err, provider.ErrProviderNotFound)

	require.NoError(t, f.store.Set(context.Background(), map[string]string{"tcp-oidc.tcp": "0"}))
	_, err = f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum"})
	require.ErrorIs(t, err, provider.ErrProviderNotFound)
}

func TestMissingSecretIsConfigurationFailure(t *testing.T) {
	seed := configured("https://idp.example")
	delete(seed, "tcp-oidc.tcp.client_secret")
	f := newFixture(t, seed, true)

	for _, q := range []url.Values{{}, {"code": {"ABC123"}}} {
		res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum", Query: q})
		require.NoError(t, err)
		require.Equal(t, StateFailed, res.State)
		require.Equal(t, "/?oauth_error=configuration", res.Location)
	}
}

func TestEmptyCodeFails(t *testing.T) {
	f := newFixture(t, configured("https://idp.example"), false)
	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum", Query: url.Values{"code": {""}}})
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, ReasonCallback, res.Reason)
	require.Equal(t, "/?oauth_error=callback&message="+url.QueryEscape(MsgCodeMissing), res.Location)
}

func TestProviderErrorParam(t *testing.T) {
	f := newFixture(t, configured("https://idp.example"), true)
	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum",
		Query: url.Values{"error": {"access_denied"}, "error_description": {"User said no"}}})
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, "User said no", res.Message)

	long := strings.Repeat("a", 199) + "é y más"
	res, err = f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "https://forum",
		Query: url.Values{"error": {"access_denied"}, "error_description": {long}}})
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 199), res.Message)
	require.True(t, utf8.ValidString(res.Message))
	loc, err := url.Parse(res.Location)
	require.NoError(t, err)
	require.Equal(t, res.Message, loc.Query().Get("message"))
}

func TestCallbackSuccessRegistersAccount(t *testing.T) {
	p := newIdP(t)
	seed := configured(p.srv.URL)
	seed["tcp-oidc.tcp.group"] = "3"
	f := newFixture(t, seed, true)
	ctx := context.Background()

	start, err := f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum", Query: url.Values{}})
	require.NoError(t, err)
	u, _ := url.Parse(start.Location)
	state := u.Query().Get("state")
	nonce := start.Cookies[0].Value

	res, err := f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum",
		Query: url.Values{"code": {"ABC123"}, "state": {state}}, StateCookie: nonce})
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Equal(t, "/", res.Location)
	require.Equal(t, int32(1), atomic.LoadInt32(&p.tokenCalls))
	require.Equal(t, -1, res.Cookies[0].MaxAge)

	acc, err := f.accounts.FindByLogin(ctx, "tcp", "u-1")
	require.NoError(t, err)
	require.Equal(t, "ann@acme.io", acc.Email)
	require.Equal(t, "ann", acc.Username)
	require.Equal(t, "acme.io", acc.Payload["org_name"])
	groups, err := f.accounts.Groups(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, groups)
}

func TestCallbackRejectsBadState(t *testing.T) {
	p := newIdP(t)
	f := newFixture(t, configured(p.srv.URL), true)
	ctx := context.Background()

	start, err := f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum", Query: url.Values{}})
	require.NoError(t, err)
	u, _ := url.Parse(start.Location)

	res, err := f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum",
		Query: url.Values{"code": {"ABC123"}, "state": {u.Query().Get("state")}}, StateCookie: "forged"})
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, MsgInvalidState, res.Message)
	require.Equal(t, int32(0), atomic.LoadInt32(&p.tokenCalls))
}

func TestCallbackWithoutStateVerification(t *testing.T) {
	p := newIdP(t)
	f := newFixture(t, configured(p.srv.URL), false)

	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "http://forum",
		Query: url.Values{"code": {"ABC123"}}})
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
}

func TestExchangeFailureIsSanitized(t *testing.T) {
	p := newIdP(t)
	f := newFixture(t, configured(p.srv.URL), false)

	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "http://forum",
		Query: url.Values{"code": {"WRONG"}}})
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, "invalid_grant", res.Message)
	require.False(t, strings.Contains(res.Location, "shh"))
}

func TestMissingIdentityAndEmail(t *testing.T) {
	p := newIdP(t)
	f := newFixture(t, configured(p.srv.URL), false)
	ctx := context.Background()

	p.userinfo = map[string]any{"email": "a@b.c"}
	res, err := f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum", Query: url.Values{"code": {"ABC123"}}})
	require.NoError(t, err)
	require.Equal(t, MsgNoIdentity, res.Message)

	p.userinfo = map[string]any{"id": 42, "name": "no mail"}
	res, err = f.ctl.Handle(ctx, Request{Provider: "tcp", BaseURL: "http://forum", Query: url.Values{"code": {"ABC123"}}})
	require.NoError(t, err)
	require.Equal(t, MsgNoEmail, res.Message)
}

func TestRegistrarFailureIsCallbackFailure(t *testing.T) {
	p := newIdP(t)
	f := newFixture(t, configured(p.srv.URL), false)
	f.ctl.d.Registrar = registration.RegistrarFunc(func(context.Context, string, string, func(*registration.Registration) error) (registration.Outcome, error) {
		return registration.Outcome{}, context.DeadlineExceeded
	})

	res, err := f.ctl.Handle(context.Background(), Request{Provider: "tcp", BaseURL: "http://forum", Query: url.Values{"code": {"ABC123"}}})
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, MsgSignInFailed, res.Message)
}

func TestPublicURLOverridesHost(t *testing.T) {
	f := newFixture(t, configured("https://idp.example"), true)
	f.ctl.d.PublicURL = "https://forum.public"
	require.Equal(t, "https://forum.public/auth/tcp", f.ctl.RedirectURI("http://internal:8080", "tcp"))
}

func TestStateSignerExpiryAndProvider(t *testing.T) {
	s, err := NewStateSigner("k", time.Minute)
	require.NoError(t, err)
	tok, nonce, err := s.Sign("tcp")
	require.NoError(t, err)

	_, err = s.Verify(tok, "other", nonce)
	require.ErrorIs(t, err, ErrStateProvider)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Verify(tok, "tcp", nonce)
	require.ErrorIs(t, err, ErrStateExpired)

	other, err := NewStateSigner("different", time.Minute)
	require.NoError(t, err)
	_, err = other.Verify(tok, "tcp", nonce)
	require.ErrorIs(t, err, ErrStateInvalid)
}
