// Package server construye todos los componentes a partir de Config y los expone como http.Handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/tcpoidc/internal/accounts"
	"github.com/dropDatabas3/tcpoidc/internal/authflow"
	"github.com/dropDatabas3/tcpoidc/internal/cache"
	"github.com/dropDatabas3/tcpoidc/internal/config"
	"github.com/dropDatabas3/tcpoidc/internal/enrich"
	"github.com/dropDatabas3/tcpoidc/internal/events"
	"github.com/dropDatabas3/tcpoidc/internal/extension"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/admin"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/auth"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/health"
	"github.com/dropDatabas3/tcpoidc/internal/http/controllers/providers"
	mw "github.com/dropDatabas3/tcpoidc/internal/http/middlewares"
	"github.com/dropDatabas3/tcpoidc/internal/http/router"
	"github.com/dropDatabas3/tcpoidc/internal/metrics"
	"github.com/dropDatabas3/tcpoidc/internal/oauth"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
	"github.com/dropDatabas3/tcpoidc/internal/rate"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
	"github.com/dropDatabas3/tcpoidc/internal/storage"
	migrations "github.com/dropDatabas3/tcpoidc/migrations/postgres"
)

// App es el grafo de dependencias armado. Los comandos del CLI usan sus campos directamente.
type App struct {
	Config    *config.Config
	Bus       *events.Dispatcher
	Cache     cache.Client
	Pool      *pgxpool.Pool
	Settings  *settings.Repository
	Registry  *provider.Registry
	Extension *extension.State
	Flow      *authflow.Controller
	Accounts  accounts.Store
	Handler   http.Handler

	watcher *settings.Watcher
	closers []func() error
}

// Options pisa piezas del grafo (tests).
type Options struct {
	// Registerer para métricas; nil usa prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// HTTPClient para hablar con los proveedores.
	HTTPClient *http.Client
}

// Build arma el App. Ante error libera lo que ya abrió.
func Build(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.From(ctx).With(logger.Layer("bootstrap"))
	ns := cfg.Extension.Namespace

	app = &App{Config: cfg, Bus: events.NewDispatcher()}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	// ===== storage =====
	if cfg.Settings.Driver == "postgres" || cfg.Storage.AccountsDriver == "postgres" {
		pool, err := storage.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		app.Pool = pool
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		if cfg.Storage.Migrate {
			res, err := storage.NewMigrator(migrations.FS, migrations.Dir).Run(ctx, pool)
			if err != nil {
				return nil, err
			}
			log.Info("migrations applied", logger.Count(len(res.Applied)))
		}
	}

	// ===== cache =====
	cc, err := cache.New(ctx, cache.Config{
		Driver:          cfg.Cache.Kind,
		Addr:            cfg.Cache.Redis.Addr,
		Password:        cfg.Cache.Redis.Password,
		DB:              cfg.Cache.Redis.DB,
		Prefix:          cfg.Cache.Redis.Prefix,
		CleanupInterval: cfg.CacheCleanup(),
	})
	if err != nil {
		return nil, err
	}
	app.Cache = cc
	app.closers = append(app.closers, cc.Close)

	// ===== settings =====
	store, err := app.settingsStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Settings = settings.NewRepository(settings.RepositoryDeps{Store: store, Bus: app.Bus, Namespace: ns})

	// ===== providers =====
	app.Registry = provider.NewRegistry(provider.RegistryDeps{Cache: cc, Namespace: ns, NoCache: cfg.App.Debug})
	for _, pc := range cfg.Providers {
		d, err := provider.NewGeneric(providerSpec(pc), app.Settings, ns)
		if err != nil {
			return nil, err
		}
		if err := app.Registry.Register(d); err != nil {
			return nil, err
		}
		app.Settings.RegisterProviderDefault(d.Name())
	}
	provider.NewInvalidator(app.Registry, ns).Subscribe(app.Bus)

	app.Extension, err = extension.NewState(ctx, extension.StateDeps{
		Namespace: ns,
		Store:     store,
		Bus:       app.Bus,
		Default:   cfg.ExtensionEnabled(),
	})
	if err != nil {
		return nil, err
	}

	// ===== accounts =====
	if cfg.Storage.AccountsDriver == "postgres" {
		app.Accounts = accounts.NewPostgres(app.Pool)
	} else {
		app.Accounts = accounts.NewMemory()
	}
	var sessions accounts.SessionIssuer
	if cfg.Session.Secret != "" {
		secure := cfg.IsProd() || strings.HasPrefix(cfg.Server.PublicURL, "https://")
		s, err := accounts.NewJWTSessions([]byte(cfg.Session.Secret), cfg.Session.Cookie, cfg.SessionTTL(), secure)
		if err != nil {
			return nil, err
		}
		sessions = s
	}
	registrar := accounts.NewService(accounts.ServiceDeps{
		Store:     app.Accounts,
		Settings:  app.Settings,
		Namespace: ns,
		Sessions:  sessions,
	})

	// ===== flow =====
	states, err := authflow.NewStateSigner(cfg.OAuth.StateSecret, cfg.StateTTL())
	if err != nil {
		return nil, err
	}
	if cfg.OAuth.StateSecret == "" {
		log.Warn("oauth.state_secret not set; using a random per-process key")
	}
	app.Flow, err = authflow.New(authflow.Deps{
		Providers: app.Registry,
		Clients: oauth.NewFactory(oauth.FactoryDeps{
			Settings:   app.Settings,
			Namespace:  ns,
			HTTPClient: opts.HTTPClient,
			Timeout:    cfg.HTTPTimeout(),
		}),
		Enricher:    enrich.NewPipeline(enrich.PipelineDeps{Settings: app.Settings, Namespace: ns, Groups: app.Accounts}),
		Registrar:   registrar,
		Settings:    app.Settings,
		Namespace:   ns,
		States:      states,
		VerifyState: cfg.VerifyState(),
		PublicURL:   cfg.Server.PublicURL,
		CookieName:  cfg.OAuth.StateCookie,
	})
	if err != nil {
		return nil, err
	}

	// ===== http =====
	metricsHandler, err := metrics.Register(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	checks := map[string]health.Check{"cache": cc.Ping}
	if app.Pool != nil {
		checks["database"] = app.Pool.Ping
	}
	if cfg.Server.AdminAPIKey == "" {
		log.Warn("server.admin_api_key not set; admin routes are closed")
	}

	proxies, err := mw.ParseTrustedProxies(cfg.Rate.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	app.Handler = router.New(router.Deps{
		Auth:      auth.NewAuthController(app.Flow),
		Providers: providers.NewProvidersController(app.Registry),
		Forum:     providers.NewForumController(app.Registry, app.Settings),
		Admin: admin.NewControllers(admin.Deps{
			Settings:  app.Settings,
			Extension: app.Extension,
			Purger:    app.Registry,
		}),
		Health:      health.NewHealthController(cfg.App.Version, checks),
		Metrics:     metricsHandler,
		AdminAPIKey: cfg.Server.AdminAPIKey,
		Enabled:     app.Extension.Enabled,
		Limiter:     app.limiter(),

		TrustedProxies: proxies,
	})

	log.Info("app built",
		logger.Count(len(cfg.Providers)),
		logger.String("settings_driver", cfg.Settings.Driver),
		logger.String("cache_kind", cfg.Cache.Kind),
		logger.String("accounts_driver", cfg.Storage.AccountsDriver),
	)
	return app, nil
}

func (a *App) settingsStore(ctx context.Context) (settings.Store, error) {
	cfg := a.Config
	switch cfg.Settings.Driver {
	case "file":
		f, err := settings.NewFile(cfg.Settings.File)
		if err != nil {
			return nil, err
		}
		if len(cfg.Settings.Seed) > 0 {
			if err := seedMissing(ctx, f, cfg.Settings.Seed); err != nil {
				return nil, err
			}
		}
		if cfg.Settings.Watch {
			w, err := settings.NewWatcher(f, a.Bus, 0)
			if err != nil {
				return nil, err
			}
			a.watcher = w
			a.closers = append(a.closers, w.Stop)
		}
		return f, nil
	case "postgres":
		p := settings.NewPostgres(a.Pool)
		if err := seedMissing(ctx, p, cfg.Settings.Seed); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return settings.NewMemory(cfg.Settings.Seed), nil
	}
}

// seedMissing escribe solo las keys que el store todavía no tiene.
func seedMissing(ctx context.Context, s settings.Store, seed map[string]string) error {
	missing := map[string]string{}
	for k, v := range seed {
		_, ok, err := s.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return s.Set(ctx, missing)
}

func (a *App) limiter() rate.Limiter {
	cfg := a.Config
	if !cfg.Rate.Enabled {
		return nil
	}
	if rc, ok := a.Cache.(*cache.Redis); ok {
		return rate.NewRedisLimiter(rc.Underlying(), cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.Limit, cfg.RateWindow())
	}
	return rate.NewMemoryLimiter(cfg.Rate.Limit, cfg.RateWindow())
}

func providerSpec(pc config.ProviderConfig) provider.Spec {
	spec := provider.Spec{Name: pc.Name, Link: pc.Link, Icon: pc.Icon, Priority: pc.Priority}
	if len(pc.Fields) > 0 {
		spec.Fields = make(map[string]provider.Requirement, len(pc.Fields))
		for k, v := range pc.Fields {
			req := provider.Required
			if strings.EqualFold(strings.TrimSpace(v), string(provider.Optional)) {
				req = provider.Optional
			}
			spec.Fields[k] = req
		}
	}
	return spec
}

// Start arranca los procesos de fondo (watcher de settings).
func (a *App) Start(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Start(ctx)
	}
}

// Close libera recursos en orden inverso de apertura.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
