// Package enrich transforma los claims de userinfo en una propuesta de registro.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dropDatabas3/tcpoidc/internal/identity"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/registration"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

var ErrMissingEmail = errors.New("email not provided by identity provider")

// Orden de precedencia de cada atributo.
var (
	emailClaims  = []string{"email", "email_address", "mail"}
	nameClaims   = []string{"nickname", "preferred_username", "given_name", "name"}
	orgClaims    = []string{"org", "organization", "org_name"}
	avatarClaims = []string{"picture", "avatar"}
)

// GroupAttacher agrega una cuenta a un grupo. Debe ser idempotente.
type GroupAttacher interface {
	AttachGroup(ctx context.Context, accountID string, groupID int64) error
}

// Proposal es la RegistrationProposal.
type Proposal struct {
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
	// GroupID > 0 agrega la cuenta nueva a ese grupo después de guardarla.
	GroupID int64
	// Payload: claims completos + org_name.
	Payload map[string]any

	groups GroupAttacher
}

// Apply vuelca la propuesta sobre la Registration del host.
func (p Proposal) Apply(reg *registration.Registration) error {
	if p.Email == "" {
		return ErrMissingEmail
	}
	reg.ProvideTrustedEmail(p.Email)
	if p.Username != "" {
		reg.SuggestUsername(p.Username)
	}
	if p.DisplayName != "" {
		reg.SuggestDisplayName(p.DisplayName)
	}
	if p.AvatarURL != "" {
		reg.ProvideAvatar(p.AvatarURL)
	}
	reg.SetPayload(p.Payload)

	if p.GroupID > 0 && p.groups != nil {
		gid, groups := p.GroupID, p.groups
		reg.AfterSave(func(ctx context.Context, accountID string) error {
			if err := groups.AttachGroup(ctx, accountID, gid); err != nil {
				return fmt.Errorf("enrich: attach group %d: %w", gid, err)
			}
			return nil
		})
	}
	return nil
}

// Pipeline es el EnrichmentPipeline.
type Pipeline struct {
	settings  settings.Reader
	namespace string
	groups    GroupAttacher
}

type PipelineDeps struct {
	Settings  settings.Reader
	Namespace string
	// Groups opcional: sin él no se registra el hook de grupo.
	Groups GroupAttacher
}

func NewPipeline(d PipelineDeps) *Pipeline {
	return &Pipeline{settings: d.Settings, namespace: d.Namespace, groups: d.Groups}
}

// Enrich es determinística para los mismos claims y settings.
func (p *Pipeline) Enrich(ctx context.Context, providerName string, claims identity.Claims) (Proposal, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Component("enrich"), logger.Provider(providerName))

	email := claims.FirstString(emailClaims...)
	if email == "" {
		log.Debug("claims without email", logger.Count(len(claims)))
		return Proposal{}, ErrMissingEmail
	}

	name := claims.FirstString(nameClaims...)
	org := claims.FirstString(orgClaims...)
	if org == "" {
		org = domainOf(email)
	}

	payload := claims.Clone()
	if org != "" {
		payload["org_name"] = org
	}

	prop := Proposal{
		Email:       email,
		Username:    name,
		DisplayName: name,
		AvatarURL:   absoluteURL(claims.FirstString(avatarClaims...)),
		Payload:     payload,
		groups:      p.groups,
	}

	gid, err := p.groupID(ctx, providerName)
	if err != nil {
		return Proposal{}, err
	}
	prop.GroupID = gid

	log.Debug("registration proposal built",
		logger.Email(email), logger.Bool("has_avatar", prop.AvatarURL != ""), logger.Any("group_id", gid))
	return prop, nil
}

func (p *Pipeline) groupID(ctx context.Context, providerName string) (int64, error) {
	if p.settings == nil {
		return 0, nil
	}
	v, ok, err := p.settings.Get(ctx, settings.Key(p.namespace, providerName, "group"))
	if err != nil {
		return 0, fmt.Errorf("enrich: read group setting: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, nil
	}
	return n, nil
}

// domainOf retorna lo que sigue al último '@'.
func domainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

// absoluteURL descarta valores sin scheme o sin host.
func absoluteURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return raw
}
