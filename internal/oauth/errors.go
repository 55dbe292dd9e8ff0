package oauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/tcpoidc/internal/util"
)

// ErrConfiguration es el sentinel de ConfigurationError (errors.Is).
var ErrConfiguration = errors.New("provider not configured")

// ConfigurationError: faltan campos requeridos o la URL base es inválida.
// Nunca incluye valores, solo nombres de campos.
type ConfigurationError struct {
	Provider string
	Missing  []string
	Invalid  []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("provider %s not configured: %s", e.Provider, strings.Join(parts, "; "))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ProviderError es un fallo del proveedor en token o userinfo.
// Code y Description vienen del cuerpo de error OAuth2 cuando existe.
type ProviderError struct {
	Provider    string
	Op          string // token | userinfo
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s request failed", e.Provider, e.Op)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SafeMessage es apto para mostrarse al usuario final.
func (e *ProviderError) SafeMessage() string {
	switch {
	case e.Description != "":
		return util.Truncate(e.Description, 200)
	case e.Code != "":
		return e.Code
	case e.Op == "token":
		return "Token exchange failed"
	default:
		return "Unable to retrieve user information"
	}
}
