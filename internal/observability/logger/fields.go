package logger

import (
	"go.uber.org/zap"
)

// ===== HTTP =====

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// ===== Dominio OIDC =====

// Provider es el nombre del proveedor de identidad (ej: "tcp").
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Role es la audiencia del listado de proveedores (forum | admin).
func Role(v string) zap.Field { return zap.String("role", v) }

// FlowState es el estado del flujo de autorización al loguear.
func FlowState(v string) zap.Field { return zap.String("flow_state", v) }

// Reason es la categoría de fallo expuesta en oauth_error.
func Reason(v string) zap.Field { return zap.String("reason", v) }

func SettingKey(v string) zap.Field { return zap.String("setting_key", v) }
func AccountID(v string) zap.Field  { return zap.String("account_id", v) }

// Email solo debe usarse en nivel Debug.
func Email(v string) zap.Field { return zap.String("email", v) }

// ===== Sistema =====

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }

// Layer: handler, service, repository.
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field  { return zap.Error(err) }

func Count(v int) zap.Field         { return zap.Int("count", v) }
func Key(v string) zap.Field        { return zap.String("key", v) }
func Any(k string, v any) zap.Field { return zap.Any(k, v) }
func String(k, v string) zap.Field  { return zap.String(k, v) }
func Bool(k string, v bool) zap.Field {
	return zap.Bool(k, v)
}
