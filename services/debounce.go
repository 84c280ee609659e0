package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DebounceGuard suppresses near-duplicate mutation requests for the same
// (operation, entity) key inside a sliding window. The window is measured
// from the last accepted request; suppressed requests do not extend it.
type DebounceGuard interface {
	// Allow reports whether the request may proceed. The check and the
	// timestamp update are a single atomic step so two near-simultaneous
	// requests cannot both pass.
	Allow(ctx context.Context, kind, id string) bool

	// Forget rolls back the key recorded by the last Allow. Callers
	// invoke it when the mutation the window was opened for never
	// applied, so the user's retry is not suppressed.
	Forget(ctx context.Context, kind, id string)

	// Reset clears all recorded timestamps. Intended for tests.
	Reset(ctx context.Context)
}

// MemoryDebounce keeps the key -> last-accepted map in process memory.
// It is the default backend for single-instance deployments.
type MemoryDebounce struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewMemoryDebounce(window time.Duration) *MemoryDebounce {
	return &MemoryDebounce{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (d *MemoryDebounce) Allow(ctx context.Context, kind, id string) bool {
	if d.window <= 0 {
		return true
	}

	key := kind + ":" + id

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now
	return true
}

func (d *MemoryDebounce) Forget(ctx context.Context, kind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, kind+":"+id)
}

func (d *MemoryDebounce) Reset(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = make(map[string]time.Time)
}

// RedisDebounce shares the window between instances via SET NX with a
// TTL, so a load-balanced pair of servers still suppresses duplicates.
type RedisDebounce struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDebounce(client *redis.Client, window time.Duration) *RedisDebounce {
	return &RedisDebounce{client: client, window: window}
}

func (d *RedisDebounce) Allow(ctx context.Context, kind, id string) bool {
	if d.window <= 0 {
		return true
	}

	key := fmt.Sprintf("debounce:%s:%s", kind, id)
	ok, err := d.client.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		// Fail open: a broken Redis must not block mutations.
		slog.Warn("debounce check failed, allowing request", "key", key, "error", err)
		return true
	}
	return ok
}

func (d *RedisDebounce) Forget(ctx context.Context, kind, id string) {
	key := fmt.Sprintf("debounce:%s:%s", kind, id)
	if err := d.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("debounce rollback failed", "key", key, "error", err)
	}
}

func (d *RedisDebounce) Reset(ctx context.Context) {
	keys, err := d.client.Keys(ctx, "debounce:*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	d.client.Del(ctx, keys...)
}
