package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tcpoidc/internal/identity"
	"github.com/dropDatabas3/tcpoidc/internal/registration"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

type fakeGroups struct {
	calls []int64
	ids   []string
}

func (f *fakeGroups) AttachGroup(_ context.Context, accountID string, gid int64) error {
	f.ids = append(f.ids, accountID)
	f.calls = append(f.calls, gid)
	return nil
}

func newPipeline(seed map[string]string, g GroupAttacher) *Pipeline {
	return NewPipeline(PipelineDeps{Settings: settings.NewMemory(seed), Namespace: "tcp-oidc", Groups: g})
}

func TestUsernamePriority(t *testing.T) {
	cases := []struct {
		name   string
		claims identity.Claims
		want   string
	}{
		{"nickname wins", identity.Claims{"nickname": "nick", "preferred_username": "pu", "given_name": "gn", "name": "full"}, "nick"},
		{"preferred_username", identity.Claims{"preferred_username": "pu", "given_name": "gn", "name": "full"}, "pu"},
		{"given_name", identity.Claims{"given_name": "gn", "name": "full"}, "gn"},
		{"name", identity.Claims{"name": "full"}, "full"},
		{"empty nickname skipped", identity.Claims{"nickname": "", "name": "full"}, "full"},
		{"none", identity.Claims{}, ""},
	}
	p := newPipeline(nil, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.claims["email"] = "x@y.z"
			prop, err := p.Enrich(context.Background(), "tcp", tc.claims)
			require.NoError(t, err)
			require.Equal(t, tc.want, prop.Username)
			require.Equal(t, tc.want, prop.DisplayName)
		})
	}
}

func TestEmailResolution(t *testing.T) {
	p := newPipeline(nil, nil)
	ctx := context.Background()

	prop, err := p.Enrich(ctx, "tcp", identity.Claims{"email_address": "a@x", "mail": "b@x"})
	require.NoError(t, err)
	require.Equal(t, "a@x", prop.Email)

	prop, err = p.Enrich(ctx, "tcp", identity.Claims{"email": "", "mail": "b@x"})
	require.NoError(t, err)
	require.Equal(t, "b@x", prop.Email)

	_, err = p.Enrich(ctx, "tcp", identity.Claims{"name": "n"})
	require.ErrorIs(t, err, ErrMissingEmail)
}

func TestOrganizationDerivation(t *testing.T) {
	p := newPipeline(nil, nil)
	ctx := context.Background()

	prop, err := p.Enrich(ctx, "tcp", identity.Claims{"email": "jane@acme.io"})
	require.NoError(t, err)
	require.Equal(t, "acme.io", prop.Payload["org_name"])

	prop, err = p.Enrich(ctx, "tcp", identity.Claims{"email": "odd@name@corp.example"})
	require.NoError(t, err)
	require.Equal(t, "corp.example", prop.Payload["org_name"])

	prop, err = p.Enrich(ctx, "tcp", identity.Claims{"email": "jane@acme.io", "organization": "Acme", "org_name": "other"})
	require.NoError(t, err)
	require.Equal(t, "Acme", prop.Payload["org_name"])
	require.Equal(t, "jane@acme.io", prop.Payload["email"])
}

func TestAvatarFiltering(t *testing.T) {
	p := newPipeline(nil, nil)
	ctx := context.Background()

	prop, err := p.Enrich(ctx, "tcp", identity.Claims{"email": "a@b", "picture": "/img/me.png"})
	require.NoError(t, err)
	require.Empty(t, prop.AvatarURL)

	prop, err = p.Enrich(ctx, "tcp", identity.Claims{"email": "a@b", "picture": "", "avatar": "https://cdn/x.png"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn/x.png", prop.AvatarURL)
}

func TestDeterministic(t *testing.T) {
	p := newPipeline(map[string]string{"tcp-oidc.tcp.group": "4"}, nil)
	claims := identity.Claims{"email": "a@b.c", "nickname": "n", "picture": "https://p/x"}
	a, err := p.Enrich(context.Background(), "tcp", claims)
	require.NoError(t, err)
	b, err := p.Enrich(context.Background(), "tcp", claims)
	require.NoError(t, err)
	require.Equal(t, a.Email, b.Email)
	require.Equal(t, a.Payload, b.Payload)
	require.Equal(t, a.GroupID, b.GroupID)
	_, mutated := claims["org_name"]
	require.False(t, mutated)
}

func TestApplyRegistersGroupHook(t *testing.T) {
	groups := &fakeGroups{}
	p := newPipeline(map[string]string{"tcp-oidc.tcp.group": " 7 "}, groups)
	prop, err := p.Enrich(context.Background(), "tcp", identity.Claims{"email": "a@b.c", "nickname": "ann"})
	require.NoError(t, err)
	require.Equal(t, int64(7), prop.GroupID)

	reg := &registration.Registration{}
	require.NoError(t, prop.Apply(reg))
	require.Equal(t, "a@b.c", reg.Email())
	require.Equal(t, "ann", reg.Username())

	hooks := reg.AfterSaveHooks()
	require.Len(t, hooks, 1)
	require.NoError(t, hooks[0](context.Background(), "acc-1"))
	require.Equal(t, []int64{7}, groups.calls)
	require.Equal(t, []string{"acc-1"}, groups.ids)
}

func TestNonNumericGroupIgnored(t *testing.T) {
	groups := &fakeGroups{}
	p := newPipeline(map[string]string{"tcp-oidc.tcp.group": "admins"}, groups)
	prop, err := p.Enrich(context.Background(), "tcp", identity.Claims{"email": "a@b.c"})
	require.NoError(t, err)
	require.Zero(t, prop.GroupID)

	reg := &registration.Registration{}
	require.NoError(t, prop.Apply(reg))
	require.Empty(t, reg.AfterSaveHooks())
}
