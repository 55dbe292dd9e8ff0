// Package oauth construye el cliente OAuth2 de un proveedor a partir de su
// descriptor y de los settings guardados, y habla con los endpoints token y userinfo.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/tcpoidc/internal/provider"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

// DefaultScopes es fijo para la variante OIDC genérica.
var DefaultScopes = []string{"openid", "profile", "email"}

// ClientConfig es por request; nunca se cachea.
type ClientConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Redacted retorna una copia sin el secret, apta para logs.
func (c ClientConfig) Redacted() ClientConfig {
	if c.ClientSecret != "" {
		c.ClientSecret = "[redacted]"
	}
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}

// Factory es el ProviderClientFactory.
type Factory struct {
	settings  settings.Reader
	namespace string
	http      *http.Client
}

type FactoryDeps struct {
	Settings  settings.Reader
	Namespace string
	// HTTPClient opcional; si es nil se crea uno con Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewFactory(d FactoryDeps) *Factory {
	hc := d.HTTPClient
	if hc == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Factory{settings: d.Settings, namespace: d.Namespace, http: hc}
}

// Build lee "<ns>.<provider>.<field>" para cada campo del descriptor y arma el cliente.
// Faltantes requeridos o URL inválida dan *ConfigurationError; fallos de lectura del
// store se envuelven aparte para distinguir transporte de configuración.
func (f *Factory) Build(ctx context.Context, d provider.Descriptor, redirectURI string) (*Client, error) {
	name := d.Name()
	fields := make(map[string]provider.Requirement)
	for k, v := range d.Fields() {
		fields[k] = v
	}
	if _, ok := fields["url"]; !ok {
		fields["url"] = provider.Required
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]string, len(keys))
	cerr := &ConfigurationError{Provider: name}
	for _, k := range keys {
		v, _, err := f.settings.Get(ctx, settings.Key(f.namespace, name, k))
		if err != nil {
			return nil, fmt.Errorf("oauth: read %s settings: %w", name, err)
		}
		v = strings.TrimSpace(v)
		if v == "" && fields[k] == provider.Required {
			cerr.Missing = append(cerr.Missing, k)
			continue
		}
		values[k] = v
	}
	if len(cerr.Missing) > 0 {
		return nil, cerr
	}

	base := strings.TrimRight(values["url"], "/")
	if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		cerr.Invalid = append(cerr.Invalid, "url")
		return nil, cerr
	}

	ep := d.Endpoints()
	cfg := ClientConfig{
		Provider:     name,
		ClientID:     values["client_id"],
		ClientSecret: values["client_secret"],
		RedirectURI:  redirectURI,
		AuthorizeURL: base + ep.Authorize,
		TokenURL:     base + ep.Token,
		UserInfoURL:  base + ep.UserInfo,
		Scopes:       append([]string(nil), DefaultScopes...),
	}
	return newClient(cfg, f.http), nil
}
