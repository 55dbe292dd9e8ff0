// Package registration es el límite con el host: el objeto Registration que la
// extensión completa y el Registrar que decide login vs. alta de cuenta.
package registration

import (
	"context"
	"net/http"
)

// AfterSaveHook corre una vez que la cuenta nueva quedó persistida.
type AfterSaveHook func(ctx context.Context, accountID string) error

// Registration acumula lo que la extensión propone para la cuenta local.
type Registration struct {
	email       string
	username    string
	displayName string
	avatarURL   string
	payload     map[string]any
	afterSave   []AfterSaveHook
}

// ProvideTrustedEmail marca el email como verificado por el proveedor.
func (r *Registration) ProvideTrustedEmail(email string) *Registration {
	r.email = email
	return r
}

func (r *Registration) SuggestUsername(v string) *Registration {
	r.username = v
	return r
}

func (r *Registration) SuggestDisplayName(v string) *Registration {
	r.displayName = v
	return r
}

func (r *Registration) ProvideAvatar(url string) *Registration {
	r.avatarURL = url
	return r
}

func (r *Registration) SetPayload(p map[string]any) *Registration {
	r.payload = p
	return r
}

func (r *Registration) AfterSave(h AfterSaveHook) *Registration {
	r.afterSave = append(r.afterSave, h)
	return r
}

func (r *Registration) Email() string           { return r.email }
func (r *Registration) Username() string        { return r.username }
func (r *Registration) DisplayName() string     { return r.displayName }
func (r *Registration) AvatarURL() string       { return r.avatarURL }
func (r *Registration) Payload() map[string]any { return r.payload }

// AfterSaveHooks en orden de registro.
func (r *Registration) AfterSaveHooks() []AfterSaveHook {
	return append([]AfterSaveHook(nil), r.afterSave...)
}

// Outcome describe el resultado de LoginOrRegister.
type Outcome struct {
	AccountID string
	Created   bool
	// Location a donde redirigir; vacío significa "/".
	Location string
	// Cookies de sesión que el host quiere emitir.
	Cookies []*http.Cookie
}

// Registrar es el colaborador del host que identifica o crea la cuenta.
// configure se invoca con una Registration nueva antes de decidir.
type Registrar interface {
	LoginOrRegister(ctx context.Context, provider, identity string, configure func(*Registration) error) (Outcome, error)
}

// RegistrarFunc adapta una función a Registrar.
type RegistrarFunc func(ctx context.Context, provider, identity string, configure func(*Registration) error) (Outcome, error)

func (f RegistrarFunc) LoginOrRegister(ctx context.Context, provider, identity string, configure func(*Registration) error) (Outcome, error) {
	return f(ctx, provider, identity, configure)
}
