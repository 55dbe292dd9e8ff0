// Package cache es el CacheStore compartido: key/value de strings con TTL opcional.
//
// Backends:
//   - memory: in-process (patrickmn/go-cache); un solo nodo, dev y tests.
//   - redis: compartido entre réplicas; las purgas se ven en todos los nodos.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get retorna ErrNotFound si la key no existe o expiró.
	Get(ctx context.Context, key string) (string, error)
	// Set con ttl 0 guarda sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete es idempotente.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Stats(ctx context.Context) (Stats, error)
}

// Stats resume el uso del cache.
type Stats struct {
	Driver string `json:"driver"`
	Keys   int64  `json:"keys"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// Config para construir un Client.
type Config struct {
	Driver          string // "memory" | "redis"
	Addr            string
	Password        string
	DB              int
	Prefix          string
	CleanupInterval time.Duration
}

var ErrNotFound = errors.New("cache: key not found")

// IsNotFound reporta si err es un miss.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New crea el cliente según cfg.Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.Prefix, cfg.CleanupInterval), nil
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
