package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig declara un proveedor registrado al arrancar.
type ProviderConfig struct {
	Name     string            `yaml:"name"`
	Link     string            `yaml:"link"`
	Icon     string            `yaml:"icon"`
	Priority int               `yaml:"priority"`
	Fields   map[string]string `yaml:"fields"` // campo -> required | optional
}

type Config struct {
	App struct {
		// dev | prod
		Env     string `yaml:"env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		// Debug desactiva el cache de listados de proveedores.
		Debug bool `yaml:"debug"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicURL (scheme://host) pisa el host del request al armar redirect URIs.
		PublicURL    string `yaml:"public_url"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		AdminAPIKey  string `yaml:"admin_api_key"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Extension struct {
		Namespace string `yaml:"namespace"`
		Enabled   *bool  `yaml:"enabled"`
	} `yaml:"extension"`

	Providers []ProviderConfig `yaml:"providers"`

	Settings struct {
		Driver string            `yaml:"driver"` // memory | file | postgres
		File   string            `yaml:"file"`
		Watch  bool              `yaml:"watch"`
		Seed   map[string]string `yaml:"seed"`
	} `yaml:"settings"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			CleanupInterval string `yaml:"cleanup_interval"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Storage struct {
		DSN            string `yaml:"dsn"`
		AccountsDriver string `yaml:"accounts_driver"` // memory | postgres
		Migrate        bool   `yaml:"migrate"`
	} `yaml:"storage"`

	OAuth struct {
		HTTPTimeout string `yaml:"http_timeout"`
		StateSecret string `yaml:"state_secret"`
		StateTTL    string `yaml:"state_ttl"`
		VerifyState *bool  `yaml:"verify_state"`
		StateCookie string `yaml:"state_cookie"`
	} `yaml:"oauth"`

	// Session es la cookie del host emitida tras un login exitoso.
	Session struct {
		// Secret vacío: no se emite cookie de sesión.
		Secret string `yaml:"secret"`
		Cookie string `yaml:"cookie"`
		TTL    string `yaml:"ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
		// TrustedProxies (IPs o CIDRs) cuyo X-Forwarded-For se respeta.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"rate"`
}

const (
	DefaultNamespace    = "tcp-oidc"
	DefaultProviderName = "tcp"
)

// Load lee el YAML en path, aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.setDefaults()
	c.applyEnvOverrides()
	return &c, nil
}

// LoadOrDefault tolera que el archivo no exista (solo env + defaults).
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		c, err := Load(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return c, err
		}
	}
	c := &Config{}
	c.setDefaults()
	c.applyEnvOverrides()
	return c, nil
}

func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "tcpoidc"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Extension.Namespace == "" {
		c.Extension.Namespace = DefaultNamespace
	}
	if c.Extension.Enabled == nil {
		c.Extension.Enabled = boolPtr(true)
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{{
			Name: DefaultProviderName,
			Link: "https://github.com/lstechneighbor/flarum-tcp-oidc",
			Icon: "tcp-text",
		}}
	}
	if c.Settings.Driver == "" {
		c.Settings.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.CleanupInterval == "" {
		c.Cache.Memory.CleanupInterval = "1m"
	}
	if c.Storage.AccountsDriver == "" {
		c.Storage.AccountsDriver = "memory"
	}
	if c.OAuth.HTTPTimeout == "" {
		c.OAuth.HTTPTimeout = "10s"
	}
	if c.OAuth.StateTTL == "" {
		c.OAuth.StateTTL = "10m"
	}
	if c.OAuth.VerifyState == nil {
		c.OAuth.VerifyState = boolPtr(true)
	}
	if c.OAuth.StateCookie == "" {
		c.OAuth.StateCookie = "tcp_oidc_state"
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = "tcpoidc_session"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "24h"
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 30
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
}

func boolPtr(b bool) *bool { return &b }

// ===== accessors tipados =====

func (c *Config) ExtensionEnabled() bool { return c.Extension.Enabled == nil || *c.Extension.Enabled }
func (c *Config) VerifyState() bool      { return c.OAuth.VerifyState == nil || *c.OAuth.VerifyState }
func (c *Config) IsProd() bool           { return c.App.Env == "prod" }

func (c *Config) HTTPTimeout() time.Duration  { return dur(c.OAuth.HTTPTimeout, 10*time.Second) }
func (c *Config) StateTTL() time.Duration     { return dur(c.OAuth.StateTTL, 10*time.Minute) }
func (c *Config) ReadTimeout() time.Duration  { return dur(c.Server.ReadTimeout, 10*time.Second) }
func (c *Config) WriteTimeout() time.Duration { return dur(c.Server.WriteTimeout, 30*time.Second) }
func (c *Config) RateWindow() time.Duration   { return dur(c.Rate.Window, time.Minute) }
func (c *Config) SessionTTL() time.Duration   { return dur(c.Session.TTL, 24*time.Hour) }
func (c *Config) CacheCleanup() time.Duration {
	return dur(c.Cache.Memory.CleanupInterval, time.Minute)
}

func dur(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ===== env =====

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: las variables de entorno pisan el YAML.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvBool("APP_DEBUG"); ok {
		c.App.Debug = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_PUBLIC_URL"); ok {
		c.Server.PublicURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Server.AdminAPIKey = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// EXTENSION / SETTINGS
	if v, ok := getEnvStr("EXTENSION_NAMESPACE"); ok {
		c.Extension.Namespace = v
	}
	if v, ok := getEnvStr("SETTINGS_DRIVER"); ok {
		c.Settings.Driver = v
	}
	if v, ok := getEnvStr("SETTINGS_FILE"); ok {
		c.Settings.File = v
	}
	if v, ok := getEnvKVList("SETTINGS_SEED", ";"); ok {
		if c.Settings.Seed == nil {
			c.Settings.Seed = map[string]string{}
		}
		for k, val := range v {
			c.Settings.Seed[k] = val
		}
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("ACCOUNTS_DRIVER"); ok {
		c.Storage.AccountsDriver = v
	}

	// OAUTH
	if v, ok := getEnvStr("OAUTH_HTTP_TIMEOUT"); ok {
		c.OAuth.HTTPTimeout = v
	}
	if v, ok := getEnvStr("OAUTH_STATE_SECRET"); ok {
		c.OAuth.StateSecret = v
	}
	if v, ok := getEnvStr("OAUTH_STATE_TTL"); ok {
		c.OAuth.StateTTL = v
	}
	if v, ok := getEnvBool("OAUTH_VERIFY_STATE"); ok {
		c.OAuth.VerifyState = boolPtr(v)
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_SECRET"); ok {
		c.Session.Secret = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT"); ok {
		c.Rate.Limit = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvStr("RATE_TRUSTED_PROXIES"); ok {
		c.Rate.TrustedProxies = splitList(v)
	}
}

// Validate rechaza combinaciones que no pueden arrancar.
func (c *Config) Validate() error {
	switch c.Settings.Driver {
	case "memory", "postgres":
	case "file":
		if c.Settings.File == "" {
			return errors.New("config: settings.file is required for driver file")
		}
	default:
		return fmt.Errorf("config: unknown settings driver %q", c.Settings.Driver)
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}
	switch c.Storage.AccountsDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: unknown accounts driver %q", c.Storage.AccountsDriver)
	}
	if (c.Settings.Driver == "postgres" || c.Storage.AccountsDriver == "postgres") && c.Storage.DSN == "" {
		return errors.New("config: storage.dsn is required for postgres drivers")
	}
	if c.IsProd() && c.VerifyState() && len(c.OAuth.StateSecret) < 32 {
		return errors.New("config: oauth.state_secret must be at least 32 bytes in prod")
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 32 {
		return errors.New("config: session.secret must be at least 32 bytes")
	}
	for _, tp := range c.Rate.TrustedProxies {
		if _, err := netip.ParsePrefix(tp); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(tp); err != nil {
			return fmt.Errorf("config: invalid rate.trusted_proxies entry %q", tp)
		}
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.New("config: provider without name")
		}
		if seen[name] {
			return fmt.Errorf("config: duplicate provider %q", name)
		}
		seen[name] = true
	}
	return nil
}

// splitList parte "a, b,c" descartando vacíos.
func splitList(s string) []string {
	var out []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
