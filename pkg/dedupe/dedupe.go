// Package dedupe records carrier events that have already been processed so
// redelivered webhooks can be acknowledged without side effects.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger reports whether a key is seen for the first time. Forget drops a
// key whose event could not be applied so a redelivery is processed.
type Ledger interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisLedger marks keys with SET NX so every instance sharing the Redis
// sees the same history.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(client redis.Cmdable, prefix string, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) FirstSeen(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, "1", l.ttl).Result()
}

func (l *RedisLedger) Forget(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// MemoryLedger is the single-process fallback when no Redis is configured.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (l *MemoryLedger) FirstSeen(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.seen[key] = now.Add(l.ttl)

	// Sweep expired keys opportunistically so the map tracks the TTL window.
	if len(l.seen)%256 == 0 {
		for k, exp := range l.seen {
			if !now.Before(exp) {
				delete(l.seen, k)
			}
		}
	}
	return true, nil
}

func (l *MemoryLedger) Forget(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.seen, key)
	return nil
}
