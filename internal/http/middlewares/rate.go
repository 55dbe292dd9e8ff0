package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/tcpoidc/internal/http/errors"
	"github.com/dropDatabas3/tcpoidc/internal/metrics"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/rate"
)

// RateKeyFunc define la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPRateKey agrupa por IP del peer; no lee el body.
func IPRateKey(r *http.Request) string { return "ip:" + clientIP(r) }

// IPRateKeyBehind agrupa por la IP resuelta a través de proxies confiables.
func IPRateKeyBehind(t TrustedProxies) RateKeyFunc {
	return func(r *http.Request) string { return "ip:" + t.ClientIP(r) }
}

type RateLimitConfig struct {
	Limiter rate.Limiter
	// KeyFunc por defecto es IPRateKeyBehind(TrustedProxies).
	KeyFunc        RateKeyFunc
	TrustedProxies TrustedProxies
	// Label es el path reportado en métricas (la ruta, no el path concreto).
	Label string
}

// WithRateLimit: si el limiter falla, el request pasa.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKeyBehind(cfg.TrustedProxies)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int(res.RetryAfter.Seconds())
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				metrics.RateLimitedTotal.WithLabelValues(cfg.Label).Inc()
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
