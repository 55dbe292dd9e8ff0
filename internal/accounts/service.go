package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/registration"
	"github.com/dropDatabas3/tcpoidc/internal/settings"
	"github.com/dropDatabas3/tcpoidc/internal/util"
)

// SessionIssuer emite la cookie de sesión del host tras un login exitoso.
type SessionIssuer interface {
	Issue(accountID string) (*http.Cookie, error)
}

// Service implementa registration.Registrar.
type Service struct {
	store     Store
	settings  settings.Reader
	namespace string
	sessions  SessionIssuer
	home      string
}

type ServiceDeps struct {
	Store     Store
	Settings  settings.Reader
	Namespace string
	Sessions  SessionIssuer // opcional
	// Home es el destino tras el login. Default "/".
	Home string
}

func NewService(d ServiceDeps) *Service {
	home := d.Home
	if home == "" {
		home = "/"
	}
	return &Service{store: d.Store, settings: d.Settings, namespace: d.Namespace, sessions: d.Sessions, home: home}
}

var _ registration.Registrar = (*Service)(nil)

// LoginOrRegister: login vinculado, luego vínculo por email confiable, luego alta.
// Los hooks AfterSave corren una sola vez, solo en el alta.
func (s *Service) LoginOrRegister(ctx context.Context, provider, identity string, configure func(*registration.Registration) error) (registration.Outcome, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("accounts"), logger.Provider(provider))

	reg := &registration.Registration{}
	if configure != nil {
		if err := configure(reg); err != nil {
			return registration.Outcome{}, err
		}
	}

	// 1) login ya vinculado
	acc, err := s.store.FindByLogin(ctx, provider, identity)
	switch {
	case err == nil:
		if err := s.maybeUpdateEmail(ctx, acc, reg.Email()); err != nil {
			log.Warn("email update skipped", logger.AccountID(acc.ID), logger.Err(err))
		}
		return s.outcome(acc.ID, false)
	case !errors.Is(err, ErrNotFound):
		return registration.Outcome{}, fmt.Errorf("accounts: find login: %w", err)
	}

	email := strings.TrimSpace(reg.Email())
	if email == "" {
		return registration.Outcome{}, ErrEmailRequired
	}

	// 2) cuenta existente con el mismo email confiable: se vincula
	acc, err = s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.store.LinkLogin(ctx, acc.ID, provider, identity); err != nil {
			return registration.Outcome{}, fmt.Errorf("accounts: link login: %w", err)
		}
		log.Info("external login linked", logger.AccountID(acc.ID), logger.Email(util.MaskEmail(email)))
		return s.outcome(acc.ID, false)
	case !errors.Is(err, ErrNotFound):
		return registration.Outcome{}, fmt.Errorf("accounts: find email: %w", err)
	}

	// 3) alta
	acc = &Account{
		ID:          uuid.NewString(),
		Email:       email,
		Username:    reg.Username(),
		DisplayName: reg.DisplayName(),
		AvatarURL:   reg.AvatarURL(),
		Payload:     reg.Payload(),
	}
	if acc.Username == "" {
		acc.Username = localPart(email)
	}
	if acc.DisplayName == "" {
		acc.DisplayName = acc.Username
	}
	if err := s.store.Create(ctx, acc); err != nil {
		return registration.Outcome{}, fmt.Errorf("accounts: create: %w", err)
	}
	if err := s.store.LinkLogin(ctx, acc.ID, provider, identity); err != nil {
		return registration.Outcome{}, fmt.Errorf("accounts: link login: %w", err)
	}

	for _, hook := range reg.AfterSaveHooks() {
		if err := hook(ctx, acc.ID); err != nil {
			// la cuenta ya existe; un hook fallido no revierte el alta
			log.Warn("after-save hook failed", logger.AccountID(acc.ID), logger.Err(err))
		}
	}
	log.Info("account registered", logger.AccountID(acc.ID), logger.Email(util.MaskEmail(email)))

	out, err := s.outcome(acc.ID, true)
	return out, err
}

func (s *Service) maybeUpdateEmail(ctx context.Context, acc *Account, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || strings.EqualFold(email, acc.Email) || s.settings == nil {
		return nil
	}
	v, _, err := s.settings.Get(ctx, settings.Key(s.namespace, "update_email_from_provider"))
	if err != nil {
		return err
	}
	if !settings.ParseBool(v) {
		return nil
	}
	return s.store.UpdateEmail(ctx, acc.ID, email)
}

func (s *Service) outcome(accountID string, created bool) (registration.Outcome, error) {
	out := registration.Outcome{AccountID: accountID, Created: created, Location: s.home}
	if s.sessions != nil {
		c, err := s.sessions.Issue(accountID)
		if err != nil {
			return registration.Outcome{}, fmt.Errorf("accounts: issue session: %w", err)
		}
		out.Cookies = append(out.Cookies, c)
	}
	return out, nil
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
