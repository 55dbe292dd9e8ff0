package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/tcpoidc/internal/identity"
	"github.com/dropDatabas3/tcpoidc/internal/metrics"
)

const maxUserInfoBytes = 1 << 20

// Client es el ProviderClient: URL de autorización, canje de code y userinfo.
type Client struct {
	cfg   ClientConfig
	oauth *oauth2.Config
	http  *http.Client
}

func newClient(cfg ClientConfig, hc *http.Client) *Client {
	return &Client{
		cfg:  cfg,
		http: hc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
				// credenciales en el body: un solo POST por code, sin reintento de AuthStyle
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Config retorna la configuración sin el secret.
func (c *Client) Config() ClientConfig { return c.cfg.Redacted() }

// AuthCodeURL incluye response_type, client_id, redirect_uri, scope y state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange canjea code por tokens. No reintenta.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	start := time.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		c.observe("token", "error", start)
		perr := &ProviderError{Provider: c.cfg.Provider, Op: "token"}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if re.Response != nil {
				perr.Status = re.Response.StatusCode
			}
			perr.Code = re.ErrorCode
			perr.Description = re.ErrorDescription
		} else {
			perr.Err = err
		}
		return nil, perr
	}
	c.observe("token", "ok", start)
	return tok, nil
}

// UserInfo hace GET al endpoint userinfo con el access token como Bearer.
func (c *Client) UserInfo(ctx context.Context, tok *oauth2.Token) (identity.Claims, error) {
	start := time.Now()
	fail := func(status int, err error) (identity.Claims, error) {
		c.observe("userinfo", "error", start)
		return nil, &ProviderError{Provider: c.cfg.Provider, Op: "userinfo", Status: status, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return fail(0, errors.New("missing access token"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserInfoBytes))
		return fail(resp.StatusCode, nil)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	var claims identity.Claims
	if err := dec.Decode(&claims); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode userinfo: %w", err))
	}
	if claims == nil {
		return fail(resp.StatusCode, errors.New("empty userinfo"))
	}
	c.observe("userinfo", "ok", start)
	return claims, nil
}

func (c *Client) observe(op, result string, start time.Time) {
	metrics.ProviderRequestDuration.WithLabelValues(c.cfg.Provider, op, result).Observe(time.Since(start).Seconds())
}
