package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-agent-platform/pkg/utils"
)

// capKey is shared by all worker replicas; the cap is cluster-wide.
const capKey = "calls:active"

// RedisCap enforces a cluster-wide limit on simultaneous calls. The
// slot TTL reclaims capacity leaked by crashed workers, so it should
// exceed the longest expected call.
type RedisCap struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCap(rdb *redis.Client, limit int, ttl time.Duration) *RedisCap {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCap{rdb: rdb, limit: limit, ttl: ttl}
}

func (c *RedisCap) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, c.rdb, capKey, c.limit, c.ttl)
}

func (c *RedisCap) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, c.rdb, capKey)
}

// MemoryCap is the single-process fallback when Redis is not
// configured.
type MemoryCap struct {
	sem chan struct{}
}

func NewMemoryCap(limit int) *MemoryCap {
	return &MemoryCap{sem: make(chan struct{}, limit)}
}

func (c *MemoryCap) Acquire(ctx context.Context) (bool, error) {
	select {
	case c.sem <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (c *MemoryCap) Release(ctx context.Context) error {
	select {
	case <-c.sem:
	default:
	}
	return nil
}
