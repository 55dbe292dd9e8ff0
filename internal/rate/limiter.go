// Package rate implementa rate limiting de ventana fija para los endpoints de login.
package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func windowKey(prefix, key string, now time.Time, window time.Duration) (string, time.Duration) {
	start := now.Truncate(window)
	left := start.Add(window).Sub(now)
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), start.Unix()), left
}

func result(hits, max int64, left time.Duration) Result {
	res := Result{Allowed: hits <= max, CurrentHits: hits, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = left
	}
	return res
}

// RedisLimiter: fixed window compartida entre réplicas (INCR + EXPIRE en una transacción).
type RedisLimiter struct {
	client rdb.UniversalClient
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client rdb.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k, left := windowKey(l.prefix, key, l.now().UTC(), l.window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	return result(incr.Val(), l.max, left), nil
}

// MemoryLimiter: fixed window in-process sobre go-cache; un solo nodo.
type MemoryLimiter struct {
	mu     sync.Mutex
	c      *gocache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	k, left := windowKey("", key, l.now().UTC(), l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		// primera request de la ventana
		l.c.Set(k, int64(1), l.window)
		hits = 1
	}
	return result(hits, l.max, left), nil
}
