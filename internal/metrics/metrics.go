// Package metrics define los collectors Prometheus del dominio OIDC.
// Viven en un paquete propio para que provider, authflow y http no se importen entre sí.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthFlowTotal cuenta flujos terminados por proveedor, estado final y razón.
	AuthFlowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcpoidc_auth_flow_total",
		Help: "Flujos de autorización por estado final",
	}, []string{"provider", "state", "reason"})

	// SummaryCacheTotal: result = hit | miss | bypass | error.
	SummaryCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcpoidc_provider_summaries_cache_total",
		Help: "Lecturas del listado de proveedores por resultado de cache",
	}, []string{"role", "result"})

	// SummaryCachePurges cuenta invalidaciones del listado.
	SummaryCachePurges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tcpoidc_provider_summaries_purges_total",
		Help: "Purgas del cache de listados de proveedores",
	})

	// ProviderRequestDuration mide token exchange y userinfo contra el proveedor.
	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tcpoidc_provider_request_duration_seconds",
		Help:    "Latencia de requests al proveedor de identidad",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider", "op", "result"})

	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcpoidc_rate_limited_total",
		Help: "Requests rechazadas por rate limit",
	}, []string{"path"})
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register registra todos los collectors (idempotente) y retorna el handler de /metrics.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			AuthFlowTotal, SummaryCacheTotal, SummaryCachePurges, ProviderRequestDuration,
			HTTPRequestsTotal, HTTPRequestDuration, RateLimitedTotal,
		} {
			if err := registerCollector(reg, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// registerCollector ignora duplicados.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
