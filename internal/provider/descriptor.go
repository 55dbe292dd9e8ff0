// Package provider describe los proveedores de identidad configurados y mantiene
// el directorio cacheado que consumen las capas de presentación.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/tcpoidc/internal/settings"
)

// Requirement indica si un campo de configuración es obligatorio.
type Requirement string

const (
	Required Requirement = "required"
	Optional Requirement = "optional"
)

// Endpoints son sufijos relativos a la URL base configurada del proveedor.
type Endpoints struct {
	Authorize string
	Token     string
	UserInfo  string
}

// OIDCEndpoints es el layout fijo del servidor TCP: {url}/api/oidc/{authorize,token,userinfo}.
var OIDCEndpoints = Endpoints{
	Authorize: "/api/oidc/authorize",
	Token:     "/api/oidc/token",
	UserInfo:  "/api/oidc/userinfo",
}

// Descriptor es la definición estática de un proveedor. Inmutable tras construirse.
type Descriptor interface {
	Name() string
	Link() string
	Icon() string
	// Fields mapea cada campo de configuración a su Requirement.
	Fields() map[string]Requirement
	Priority() int
	Endpoints() Endpoints
	// Enabled se deriva del setting "<namespace>.<name>"; sin valor guardado es true.
	Enabled(ctx context.Context) (bool, error)
}

// DefaultFields de la variante OIDC genérica.
func DefaultFields() map[string]Requirement {
	return map[string]Requirement{
		"url":           Required,
		"client_id":     Required,
		"client_secret": Required,
	}
}

// Spec son los datos estáticos de un Generic.
type Spec struct {
	Name     string
	Link     string
	Icon     string
	Priority int
	Fields   map[string]Requirement
}

// Generic es la variante OIDC genérica (servidor TCP). Lee su flag enabled del SettingsStore.
type Generic struct {
	spec      Spec
	settings  settings.Reader
	namespace string
}

// NewGeneric valida el nombre y copia Fields.
func NewGeneric(spec Spec, reader settings.Reader, namespace string) (*Generic, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" || strings.ContainsAny(spec.Name, "./ ?#") {
		return nil, fmt.Errorf("provider: invalid name %q", spec.Name)
	}
	fields := spec.Fields
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	spec.Fields = make(map[string]Requirement, len(fields))
	for k, v := range fields {
		spec.Fields[k] = v
	}
	return &Generic{spec: spec, settings: reader, namespace: namespace}, nil
}

func (g *Generic) Name() string         { return g.spec.Name }
func (g *Generic) Link() string         { return g.spec.Link }
func (g *Generic) Icon() string         { return g.spec.Icon }
func (g *Generic) Priority() int        { return g.spec.Priority }
func (g *Generic) Endpoints() Endpoints { return OIDCEndpoints }

// Fields retorna una copia.
func (g *Generic) Fields() map[string]Requirement {
	out := make(map[string]Requirement, len(g.spec.Fields))
	for k, v := range g.spec.Fields {
		out[k] = v
	}
	return out
}

func (g *Generic) Enabled(ctx context.Context) (bool, error) {
	v, ok, err := g.settings.Get(ctx, settings.Key(g.namespace, g.spec.Name))
	if err != nil {
		return false, fmt.Errorf("provider %s: read enabled flag: %w", g.spec.Name, err)
	}
	if !ok {
		return true, nil
	}
	return settings.ParseBool(v), nil
}
