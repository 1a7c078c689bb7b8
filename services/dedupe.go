package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records idempotency keys for a bounded time. Claim reports true
// only for the first caller of a key within the TTL, across every instance
// sharing the backing store.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// RedisDeduper backs the record with SET NX plus expiry.
type RedisDeduper struct {
	Client *redis.Client
	TTL    time.Duration
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.Client.SetNX(ctx, "event_dedupe:"+key, 1, d.TTL).Result()
}

// MemoryDeduper is the single-instance fallback. Expired keys are removed by Purge.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{seen: map[string]time.Time{}, ttl: ttl, clock: time.Now}
}

func (d *MemoryDeduper) Claim(ctx context.Context, key string) (bool, error) {
	now := d.clock()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

// Purge drops expired keys and returns how many were removed.
func (d *MemoryDeduper) Purge() int {
	now := d.clock()
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
			n++
		}
	}
	return n
}
