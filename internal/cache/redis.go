package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implementa Client sobre go-redis.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis conecta y verifica con PING (timeout 5s).
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.Prefix), nil
}

// NewRedisFromClient envuelve un cliente existente (compartido con el rate limiter).
func NewRedisFromClient(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

// Underlying expone el cliente go-redis.
func (c *Redis) Underlying() redis.UniversalClient { return c.rdb }

func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, prefixed(c.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	c.hits.Add(1)
	return val, nil
}

func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, prefixed(c.prefix, key), value, ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, prefixed(c.prefix, key)).Err()
}

func (c *Redis) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Redis) Close() error { return c.rdb.Close() }

func (c *Redis) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Driver: "redis", Keys: keys, Hits: c.hits.Load(), Misses: c.misses.Load()}, nil
}
