package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tcpoidc/internal/cache"
	"github.com/dropDatabas3/tcpoidc/internal/events"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

const ns = "tcp-oidc"

// countingCache cuenta Sets sobre un cache en memoria.
type countingCache struct {
	cache.Client
	mu   sync.Mutex
	sets int
	fail error
}

func (c *countingCache) Set(ctx context.Context, k, v string, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Client.Set(ctx, k, v, ttl)
}

func (c *countingCache) Get(ctx context.Context, k string) (string, error) {
	if c.fail != nil {
		return "", c.fail
	}
	return c.Client.Get(ctx, k)
}

func newFixture(t *testing.T, seed map[string]string, names ...string) (*Registry, *countingCache, *settings.Memory) {
	t.Helper()
	store := settings.NewMemory(seed)
	cc := &countingCache{Client: cache.NewMemory("", 0)}
	reg := NewRegistry(RegistryDeps{Cache: cc, Namespace: ns})
	for i, n := range names {
		g, err := NewGeneric(Spec{Name: n, Icon: n + "-icon", Link: "https://" + n, Priority: i}, store, ns)
		require.NoError(t, err)
		require.NoError(t, reg.Register(g))
	}
	return reg, cc, store
}

func TestRegisterDuplicateAndLookup(t *testing.T) {
	reg, _, store := newFixture(t, nil, "tcp")

	g, err := NewGeneric(Spec{Name: "tcp"}, store, ns)
	require.NoError(t, err)
	require.ErrorIs(t, reg.Register(g), ErrDuplicateProvider)

	d, err := reg.Lookup("tcp")
	require.NoError(t, err)
	require.Equal(t, "tcp", d.Name())
	require.Equal(t, Required, d.Fields()["client_secret"])

	_, err = reg.Lookup("unknown-provider")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestInvalidNames(t *testing.T) {
	for _, n := range []string{"", "a.b", "a b", "x?y"} {
		_, err := NewGeneric(Spec{Name: n}, settings.NewMemory(nil), ns)
		require.Error(t, err, n)
	}
}

func TestForumExcludesDisabledAdminIncludesAll(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newFixture(t, map[string]string{"tcp-oidc.beta": "0"}, "alpha", "beta", "gamma")

	forum, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, forum, 2)
	require.Equal(t, "alpha", forum[0].Name)
	require.Equal(t, "gamma", forum[1].Name)
	require.NotNil(t, forum[1].Priority)
	require.Equal(t, 2, *forum[1].Priority)
	require.Empty(t, forum[0].Link)
	require.Nil(t, forum[0].Fields)

	admin, err := reg.ListSummaries(ctx, RoleAdmin, false)
	require.NoError(t, err)
	require.Len(t, admin, 3)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, []string{admin[0].Name, admin[1].Name, admin[2].Name})
	require.Equal(t, "https://beta", admin[1].Link)
	require.Equal(t, DefaultFields(), admin[1].Fields)
	require.Nil(t, admin[1].Priority)
}

func TestListSummariesIdempotentSingleCacheWrite(t *testing.T) {
	ctx := context.Background()
	reg, cc, _ := newFixture(t, nil, "tcp")

	first, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	second, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, cc.sets)

	raw, err := cc.Client.Get(ctx, "tcp-oidc.providers.forum")
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"tcp","icon":"tcp-icon","priority":0}]`, raw)
}

func TestStaleUntilPurged(t *testing.T) {
	ctx := context.Background()
	reg, _, store := newFixture(t, nil, "tcp")

	list, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// escritura directa al store, sin evento: el cache sigue sirviendo el valor viejo
	require.NoError(t, store.Set(ctx, map[string]string{"tcp-oidc.tcp": "0"}))
	list, err = reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	fresh, err := reg.ListSummaries(ctx, RoleForum, true)
	require.NoError(t, err)
	require.Empty(t, fresh)

	require.NoError(t, reg.Purge(ctx))
	list, err = reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestNoCacheModeNeverWrites(t *testing.T) {
	ctx := context.Background()
	cc := &countingCache{Client: cache.NewMemory("", 0)}
	reg := NewRegistry(RegistryDeps{Cache: cc, Namespace: ns, NoCache: true})
	g, err := NewGeneric(Spec{Name: "tcp"}, settings.NewMemory(nil), ns)
	require.NoError(t, err)
	require.NoError(t, reg.Register(g))

	_, err = reg.ListSummaries(ctx, RoleAdmin, false)
	require.NoError(t, err)
	require.Equal(t, 0, cc.sets)
}

func TestCacheReadFailureDegrades(t *testing.T) {
	ctx := context.Background()
	reg, cc, _ := newFixture(t, nil, "tcp")
	cc.fail = errors.New("redis down")

	list, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 0, cc.sets)
}

func TestUnknownRole(t *testing.T) {
	reg, _, _ := newFixture(t, nil, "tcp")
	_, err := reg.ListSummaries(context.Background(), Role("guest"), false)
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestInvalidatorPurgesOnNamespacedWrite(t *testing.T) {
	ctx := context.Background()
	reg, _, store := newFixture(t, nil, "tcp")
	bus := events.NewDispatcher()
	NewInvalidator(reg, ns).Subscribe(bus)
	repo := settings.NewRepository(settings.RepositoryDeps{Store: store, Bus: bus, Namespace: ns})

	list, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// key ajena: sin purga
	require.NoError(t, repo.Set(ctx, map[string]string{"forum_title": "x", "tcp-oidcx.tcp": "0"}))
	require.NoError(t, store.Set(ctx, map[string]string{"tcp-oidc.tcp": "0"}))
	list, err = reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Set(ctx, map[string]string{"tcp-oidc.tcp": "0"}))
	list, err = reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestInvalidatorPurgesOnToggle(t *testing.T) {
	ctx := context.Background()
	reg, cc, _ := newFixture(t, nil, "tcp")
	inv := NewInvalidator(reg, ns)

	_, err := reg.ListSummaries(ctx, RoleAdmin, false)
	require.NoError(t, err)
	require.NoError(t, inv.OnExtensionToggled(ctx, events.ExtensionToggled{Enabled: false}))

	_, err = cc.Client.Get(ctx, "tcp-oidc.providers.admin")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

// gatedDesc lee el flag y se bloquea hasta release.
type gatedDesc struct {
	Descriptor
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedDesc) Enabled(ctx context.Context) (bool, error) {
	on, err := g.Descriptor.Enabled(ctx)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return on, err
}

func newGated(t *testing.T, store settings.Reader) *gatedDesc {
	t.Helper()
	g, err := NewGeneric(Spec{Name: "tcp"}, store, ns)
	require.NoError(t, err)
	return &gatedDesc{Descriptor: g, entered: make(chan struct{}), release: make(chan struct{})}
}

func TestPurgeDuringComputeDropsStaleWrite(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemory(nil)
	cc := &countingCache{Client: cache.NewMemory("", 0)}
	reg := NewRegistry(RegistryDeps{Cache: cc, Namespace: ns})
	d := newGated(t, store)
	require.NoError(t, reg.Register(d))

	type res struct {
		list []Summary
		err  error
	}
	done := make(chan res, 1)
	go func() {
		list, err := reg.ListSummaries(ctx, RoleForum, false)
		done <- res{list, err}
	}()

	<-d.entered
	require.NoError(t, store.Set(ctx, map[string]string{"tcp-oidc.tcp": "0"}))
	require.NoError(t, reg.Purge(ctx))
	close(d.release)
	first := <-done
	require.NoError(t, first.err)
	require.Len(t, first.list, 1)

	_, err := cc.Get(ctx, reg.CacheKey(RoleForum))
	require.True(t, cache.IsNotFound(err))

	for i := 0; i < 3; i++ {
		list, err := reg.ListSummaries(ctx, RoleForum, false)
		require.NoError(t, err)
		require.Empty(t, list)
	}
}

// ctxDesc falla si el contexto recibido está cancelado.
type ctxDesc struct{ Descriptor }

func (c ctxDesc) Enabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Descriptor.Enabled(ctx)
}

func TestComputeIgnoresCallerCancellation(t *testing.T) {
	store := settings.NewMemory(nil)
	reg := NewRegistry(RegistryDeps{Cache: cache.NewMemory("", 0), Namespace: ns})
	g, err := NewGeneric(Spec{Name: "tcp"}, store, ns)
	require.NoError(t, err)
	require.NoError(t, reg.Register(ctxDesc{g}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	list, err := reg.ListSummaries(ctx, RoleForum, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
