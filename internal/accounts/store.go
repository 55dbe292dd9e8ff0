// Package accounts es el colaborador de host de referencia: busca o crea cuentas
// locales a partir de un login externo y adjunta grupos.
package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrEmailRequired = errors.New("trusted email required to register")
)

// Account es la cuenta local.
type Account struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store persiste cuentas, logins externos y membresías.
type Store interface {
	FindByLogin(ctx context.Context, provider, identity string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, acc *Account) error
	LinkLogin(ctx context.Context, accountID, provider, identity string) error
	UpdateEmail(ctx context.Context, accountID, email string) error
	// AttachGroup es idempotente.
	AttachGroup(ctx context.Context, accountID string, groupID int64) error
	Groups(ctx context.Context, accountID string) ([]int64, error)
}
