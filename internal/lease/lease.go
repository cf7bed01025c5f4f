// Package lease hands out short redis-backed leases so only one replica processes a
// game at a time.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Second

// release deletes the key only while it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

type Locker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func New(c Config) *Locker {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Locker{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

// Acquire takes the lease on name. It reports false without error when another holder
// has it. The returned release func is a no-op after the lease expired.
func (l *Locker) Acquire(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	var (
		key   = l.key(name)
		token = uuid.NewString()
	)

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease: setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func(ctx context.Context) error {
		if err := release.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("lease: release %s: %w", key, err)
		}
		return nil
	}, true, nil
}

func (l *Locker) key(name string) string {
	return fmt.Sprintf("%s:lease:%s", l.prefix, name)
}
