package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/tcpoidc/internal/cache"
	"github.com/dropDatabas3/tcpoidc/internal/metrics"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrUnknownRole       = errors.New("unknown summary role")
)

// Registry es el directorio de proveedores. Se llena al arrancar; después es solo lectura.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
	order  []string

	cache     cache.Client
	namespace string
	noCache   bool
	group     singleflight.Group

	// gen sube con cada Purge; un cálculo iniciado antes no escribe.
	gen     atomic.Uint64
	writeMu sync.Mutex
}

type RegistryDeps struct {
	// Cache puede ser nil: equivale a NoCache.
	Cache     cache.Client
	Namespace string
	// NoCache (modo debug) calcula los listados en cada llamada.
	NoCache bool
}

func NewRegistry(d RegistryDeps) *Registry {
	return &Registry{
		byName:    make(map[string]Descriptor),
		cache:     d.Cache,
		namespace: d.Namespace,
		noCache:   d.NoCache || d.Cache == nil,
	}
}

// Register falla con ErrDuplicateProvider si el nombre ya existe.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := d.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.byName[name] = d
	r.order = append(r.order, name)
	return nil
}

// Lookup busca por nombre exacto.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return d, nil
}

// Names en orden de registro.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// CacheKey retorna "<namespace>.providers.<role>".
func (r *Registry) CacheKey(role Role) string {
	return r.namespace + ".providers." + string(role)
}

// ListSummaries retorna el listado para role, desde cache salvo forceFresh o modo sin cache.
// Un miss calcula el listado y lo guarda sin expiración; fallos del cache degradan a
// cálculo directo. El slice retornado es compartido: no modificar.
func (r *Registry) ListSummaries(ctx context.Context, role Role, forceFresh bool) ([]Summary, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if forceFresh || r.noCache {
		metrics.SummaryCacheTotal.WithLabelValues(string(role), "bypass").Inc()
		return r.compute(ctx, role)
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("provider.registry"), logger.Role(string(role)))
	key := r.CacheKey(role)

	raw, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var out []Summary
		if jerr := json.Unmarshal([]byte(raw), &out); jerr == nil {
			metrics.SummaryCacheTotal.WithLabelValues(string(role), "hit").Inc()
			return out, nil
		}
		log.Warn("corrupt summaries cache entry, recomputing", logger.Key(key))
	case cache.IsNotFound(err):
	default:
		// cache caído: no intentamos escribir
		metrics.SummaryCacheTotal.WithLabelValues(string(role), "error").Inc()
		log.Warn("summaries cache read failed", logger.Key(key), logger.Err(err))
		return r.compute(ctx, role)
	}

	metrics.SummaryCacheTotal.WithLabelValues(string(role), "miss").Inc()
	gen := r.gen.Load()
	flight := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := r.group.Do(flight, func() (any, error) {
		// el cálculo es compartido: no depende de la cancelación del primer request
		fctx := context.WithoutCancel(ctx)
		out, err := r.compute(fctx, role)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(out)
		if err == nil {
			err = r.store(fctx, key, string(b), gen)
		}
		if err != nil {
			log.Warn("summaries cache write failed", logger.Key(key), logger.Err(err))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Summary), nil
}

// store escribe solo si no hubo Purge desde gen.
func (r *Registry) store(ctx context.Context, key, val string, gen uint64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.gen.Load() != gen {
		return nil
	}
	return r.cache.Set(ctx, key, val, 0)
}

func (r *Registry) compute(ctx context.Context, role Role) ([]Summary, error) {
	r.mu.RLock()
	ds := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		ds = append(ds, r.byName[name])
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(ds))
	for _, d := range ds {
		if role == RoleAdmin {
			out = append(out, adminSummary(d))
			continue
		}
		on, err := d.Enabled(ctx)
		if err != nil {
			return nil, err
		}
		if on {
			out = append(out, forumSummary(d))
		}
	}
	return out, nil
}

// Purge borra ambos listados; el próximo ListSummaries los recalcula.
func (r *Registry) Purge(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.gen.Add(1)
	metrics.SummaryCachePurges.Inc()
	var errs []error
	for _, role := range []Role{RoleForum, RoleAdmin} {
		if err := r.cache.Delete(ctx, r.CacheKey(role)); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", role, err))
		}
	}
	return errors.Join(errs...)
}
