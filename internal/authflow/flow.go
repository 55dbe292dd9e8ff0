// Package authflow es el AuthFlowController: la máquina de estados del
// authorization-code grant para un proveedor registrado.
//
//	START -> REDIRECTING                    (sin code)
//	START -> EXCHANGING -> SUCCESS | FAILED (con code)
//	START -> FAILED                         (configuración incompleta)
//
// Handle no escribe HTTP: retorna un Result que el controller traduce a la respuesta.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tcpoidc/internal/enrich"
	"github.com/dropDatabas3/tcpoidc/internal/identity"
	"github.com/dropDatabas3/tcpoidc/internal/metrics"
	"github.com/dropDatabas3/tcpoidc/internal/oauth"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
	"github.com/dropDatabas3/tcpoidc/internal/registration"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
	"github.com/dropDatabas3/tcpoidc/internal/util"
)

// State del flujo.
type State string

const (
	StateStart       State = "START"
	StateRedirecting State = "REDIRECTING"
	StateExchanging  State = "EXCHANGING"
	StateSuccess     State = "SUCCESS"
	StateFailed      State = "FAILED"
)

// Reason es el valor de oauth_error en la URL de fallo.
type Reason string

const (
	ReasonConfiguration Reason = "configuration"
	ReasonCallback      Reason = "callback"
)

// Mensajes de fallo visibles para el usuario.
const (
	MsgCodeMissing     = "Authorization code not received"
	MsgInvalidState    = "Invalid state"
	MsgNoIdentity      = "Identity not received from provider"
	MsgNoEmail         = "No email address provided by identity provider"
	MsgSignInFailed    = "Unable to complete sign in"
	MsgProviderFailure = "Authentication failed at provider"
)

// Request es lo que el controller extrae del request HTTP.
type Request struct {
	Provider string
	// BaseURL es scheme://host del request (sin path).
	BaseURL     string
	Query       url.Values
	StateCookie string
}

// Result describe la respuesta: siempre un redirect 302 salvo error retornado.
type Result struct {
	Status   int
	Location string
	Cookies  []*http.Cookie
	State    State
	Reason   Reason
	Message  string
}

// Lookup es lo que el flujo necesita del ProviderRegistry.
type Lookup interface {
	Lookup(name string) (provider.Descriptor, error)
}

// ClientBuilder es lo que el flujo necesita del ProviderClientFactory.
type ClientBuilder interface {
	Build(ctx context.Context, d provider.Descriptor, redirectURI string) (*oauth.Client, error)
}

// Enricher es lo que el flujo necesita del EnrichmentPipeline.
type Enricher interface {
	Enrich(ctx context.Context, providerName string, claims identity.Claims) (enrich.Proposal, error)
}

type Deps struct {
	Providers Lookup
	Clients   ClientBuilder
	Enricher  Enricher
	Registrar registration.Registrar
	Settings  settings.Reader
	Namespace string
	States    *StateSigner
	// VerifyState false solo registra el state recibido.
	VerifyState bool
	// PublicURL pisa Request.BaseURL al armar el redirect URI.
	PublicURL  string
	CookieName string
}

// Controller es seguro para uso concurrente; no guarda estado por request.
type Controller struct {
	d Deps
}

func New(d Deps) (*Controller, error) {
	if d.Providers == nil || d.Clients == nil || d.Enricher == nil || d.Registrar == nil || d.States == nil {
		return nil, errors.New("authflow: missing dependency")
	}
	if d.CookieName == "" {
		d.CookieName = "tcp_oidc_state"
	}
	d.PublicURL = strings.TrimRight(d.PublicURL, "/")
	return &Controller{d: d}, nil
}

// CookieName es el nombre de la cookie que lleva el nonce del state.
func (c *Controller) CookieName() string { return c.d.CookieName }

// RedirectURI es "{base}/auth/{provider}", sin query.
func (c *Controller) RedirectURI(baseURL, providerName string) string {
	base := c.d.PublicURL
	if base == "" {
		base = strings.TrimRight(baseURL, "/")
	}
	return base + "/auth/" + providerName
}

// Handle corre el flujo. Retorna error solo para proveedor inexistente o deshabilitado
// (provider.ErrProviderNotFound) y fallos internos del SettingsStore.
func (c *Controller) Handle(ctx context.Context, req Request) (Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Component("authflow"), logger.Provider(req.Provider))

	// ===== START =====
	d, err := c.d.Providers.Lookup(req.Provider)
	if err != nil {
		return Result{}, err
	}
	enabled, err := d.Enabled(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("authflow: %w", err)
	}
	if !enabled {
		return Result{}, fmt.Errorf("%w: %s is disabled", provider.ErrProviderNotFound, req.Provider)
	}

	redirectURI := c.RedirectURI(req.BaseURL, d.Name())
	secure := strings.HasPrefix(redirectURI, "https://")
	client, err := c.d.Clients.Build(ctx, d, redirectURI)
	if err != nil {
		if errors.Is(err, oauth.ErrConfiguration) {
			return c.fail(ctx, log, d.Name(), secure, ReasonConfiguration, "", err), nil
		}
		return Result{}, fmt.Errorf("authflow: build client: %w", err)
	}

	codes, hasCode := req.Query["code"]
	if !hasCode {
		if idpErr := req.Query.Get("error"); idpErr != "" {
			msg := req.Query.Get("error_description")
			if msg == "" {
				msg = idpErr
			}
			return c.fail(ctx, log, d.Name(), secure, ReasonCallback, util.Truncate(msg, 200), errors.New("provider returned error: "+idpErr)), nil
		}
		return c.redirect(log, d.Name(), secure, client)
	}

	// ===== EXCHANGING =====
	code := ""
	if len(codes) > 0 {
		code = strings.TrimSpace(codes[0])
	}
	if code == "" {
		return c.failCallback(ctx, log, d.Name(), secure, MsgCodeMissing, errors.New("empty code")), nil
	}

	stateParam := req.Query.Get("state")
	if c.d.VerifyState {
		if _, err := c.d.States.Verify(stateParam, d.Name(), req.StateCookie); err != nil {
			return c.failCallback(ctx, log, d.Name(), secure, MsgInvalidState, err), nil
		}
	} else {
		log.Debug("state not verified", logger.Bool("state_present", stateParam != ""))
	}

	tok, err := client.Exchange(ctx, code)
	if err != nil {
		return c.failCallback(ctx, log, d.Name(), secure, providerMessage(err), err), nil
	}
	claims, err := client.UserInfo(ctx, tok)
	if err != nil {
		return c.failCallback(ctx, log, d.Name(), secure, providerMessage(err), err), nil
	}
	log.Debug("userinfo received", logger.Count(len(claims)))

	subject := claims.Subject()
	if subject == "" {
		return c.failCallback(ctx, log, d.Name(), secure, MsgNoIdentity, errors.New("no sub, id or client_id claim")), nil
	}

	proposal, err := c.d.Enricher.Enrich(ctx, d.Name(), claims)
	if err != nil {
		msg := MsgSignInFailed
		if errors.Is(err, enrich.ErrMissingEmail) {
			msg = MsgNoEmail
		}
		return c.failCallback(ctx, log, d.Name(), secure, msg, err), nil
	}

	outcome, err := c.d.Registrar.LoginOrRegister(ctx, d.Name(), subject, proposal.Apply)
	if err != nil {
		msg := MsgSignInFailed
		if errors.Is(err, enrich.ErrMissingEmail) {
			msg = MsgNoEmail
		}
		return c.failCallback(ctx, log, d.Name(), secure, msg, err), nil
	}

	// ===== SUCCESS =====
	loc := outcome.Location
	if loc == "" {
		loc = "/"
	}
	metrics.AuthFlowTotal.WithLabelValues(d.Name(), string(StateSuccess), "").Inc()
	log.Info("sign in completed", logger.AccountID(outcome.AccountID), logger.Bool("created", outcome.Created))

	cookies := append([]*http.Cookie{c.clearStateCookie(d.Name(), secure)}, outcome.Cookies...)
	return Result{Status: http.StatusFound, Location: loc, Cookies: cookies, State: StateSuccess}, nil
}

func (c *Controller) redirect(log *zap.Logger, name string, secure bool, client *oauth.Client) (Result, error) {
	token, nonce, err := c.d.States.Sign(name)
	if err != nil {
		return Result{}, fmt.Errorf("authflow: %w", err)
	}
	metrics.AuthFlowTotal.WithLabelValues(name, string(StateRedirecting), "").Inc()
	log.Debug("redirecting to provider", logger.FlowState(string(StateRedirecting)))

	return Result{
		Status:   http.StatusFound,
		Location: client.AuthCodeURL(token),
		Cookies:  []*http.Cookie{c.stateCookie(name, nonce, secure)},
		State:    StateRedirecting,
	}, nil
}

func (c *Controller) failCallback(ctx context.Context, log *zap.Logger, name string, secure bool, msg string, cause error) Result {
	return c.fail(ctx, log, name, secure, ReasonCallback, msg, cause)
}

// fail arma "/?oauth_error=<reason>[&message=<msg>]" y limpia la cookie de state.
func (c *Controller) fail(ctx context.Context, log *zap.Logger, name string, secure bool, reason Reason, msg string, cause error) Result {
	metrics.AuthFlowTotal.WithLabelValues(name, string(StateFailed), string(reason)).Inc()

	fields := []zap.Field{logger.FlowState(string(StateFailed)), logger.Reason(string(reason)), logger.Err(cause)}
	if c.logErrors(ctx) {
		log.Warn("oauth flow failed", fields...)
	} else {
		log.Debug("oauth flow failed", fields...)
	}

	loc := "/?oauth_error=" + url.QueryEscape(string(reason))
	if msg != "" {
		loc += "&message=" + url.QueryEscape(msg)
	}
	return Result{
		Status:   http.StatusFound,
		Location: loc,
		Cookies:  []*http.Cookie{c.clearStateCookie(name, secure)},
		State:    StateFailed,
		Reason:   reason,
		Message:  msg,
	}
}

func (c *Controller) logErrors(ctx context.Context) bool {
	if c.d.Settings == nil {
		return false
	}
	v, _, err := c.d.Settings.Get(ctx, settings.Key(c.d.Namespace, "log-oauth-errors"))
	return err == nil && settings.ParseBool(v)
}

func (c *Controller) stateCookie(name, nonce string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     c.d.CookieName,
		Value:    nonce,
		Path:     "/auth/" + name,
		MaxAge:   int(c.d.States.TTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Controller) clearStateCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     c.d.CookieName,
		Value:    "",
		Path:     "/auth/" + name,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// providerMessage nunca incluye tokens ni el client secret.
func providerMessage(err error) string {
	var perr *oauth.ProviderError
	if errors.As(err, &perr) {
		return perr.SafeMessage()
	}
	return MsgProviderFailure
}
