package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/demolens/internal/cache"
)

// AttemptCounter counts failed deliveries per message handle.
type AttemptCounter interface {
	Incr(ctx context.Context, handle string) (int64, error)
	Reset(ctx context.Context, handle string) error
}

// MemoryAttempts keeps counts for the life of the process.
type MemoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{counts: make(map[string]int64)}
}

func (m *MemoryAttempts) Incr(_ context.Context, handle string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[handle]++
	return m.counts[handle], nil
}

func (m *MemoryAttempts) Reset(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, handle)
	return nil
}

// CacheAttempts keeps counts in Redis so they survive worker restarts.
// A counter expires ttl after its first failure.
type CacheAttempts struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCacheAttempts(c cache.Cache, ttl time.Duration) *CacheAttempts {
	return &CacheAttempts{cache: c, ttl: ttl}
}

func (c *CacheAttempts) Incr(ctx context.Context, handle string) (int64, error) {
	return c.cache.IncrWithExpiry(ctx, cache.AttemptKey(handle), c.ttl)
}

func (c *CacheAttempts) Reset(ctx context.Context, handle string) error {
	return c.cache.Delete(ctx, cache.AttemptKey(handle))
}
