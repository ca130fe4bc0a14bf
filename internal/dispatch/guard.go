package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard optionally deduplicates dispatches for the same room+number.
// The CLI path itself offers no idempotency: without a guard, duplicate
// /start_call requests create duplicate jobs.
type Guard interface {
	// Acquire returns false when an equivalent dispatch is already in
	// flight.
	Acquire(ctx context.Context, room, phoneNumber string) (bool, error)

	// Release frees the slot early when the dispatch fails, so the
	// caller can retry immediately. Successful dispatches are not
	// released; their slots lapse via the TTL.
	Release(ctx context.Context, room, phoneNumber string) error
}

func guardKey(room, phoneNumber string) string {
	return fmt.Sprintf("dispatch:inflight:%s:%s", room, phoneNumber)
}

// RedisGuard coordinates across api replicas using SET NX with a TTL so
// crashed processes cannot leak slots.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, room, phoneNumber string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, guardKey(room, phoneNumber), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dispatch: guard acquire: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, room, phoneNumber string) error {
	if err := g.rdb.Del(ctx, guardKey(room, phoneNumber)).Err(); err != nil {
		return fmt.Errorf("dispatch: guard release: %w", err)
	}
	return nil
}

// MemoryGuard is a single-process guard for local use and tests.
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, inflight: make(map[string]time.Time)}
}

func (g *MemoryGuard) Acquire(ctx context.Context, room, phoneNumber string) (bool, error) {
	key := guardKey(room, phoneNumber)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if exp, ok := g.inflight[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.inflight[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, room, phoneNumber string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, guardKey(room, phoneNumber))
	return nil
}

// NoGuard preserves the historical behavior: every request dispatches.
type NoGuard struct{}

func (NoGuard) Acquire(ctx context.Context, room, phoneNumber string) (bool, error) {
	return true, nil
}

func (NoGuard) Release(ctx context.Context, room, phoneNumber string) error { return nil }
