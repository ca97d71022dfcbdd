package auth

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/authhub/internal/cache"
	"github.com/redis/go-redis/v9"
)

// Blacklist records invalidated token ids for ttl, the token's remaining
// lifetime as measured by the Manager's clock.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

const blacklistKeyPrefix = "authhub:token_blacklist:"

type RedisBlacklist struct {
	rdb *redis.Client
}

func NewRedisBlacklist(rdb *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb}
}

func (b *RedisBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	// already past expiry, the token can never validate again
	if ttl <= 0 {
		return nil
	}

	return b.rdb.Set(ctx, blacklistKeyPrefix+jti, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	_, err := b.rdb.Get(ctx, blacklistKeyPrefix+jti).Result()

	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// MemoryBlacklist keeps entries in process. Used when no Redis is configured
// and in tests; entries are not shared between instances.
const memoryBlacklistPruneAt = 10000

type MemoryBlacklist struct {
	c *cache.Cache
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{c: cache.New(time.Hour)}
}

func (b *MemoryBlacklist) Add(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	// expired entries are otherwise only dropped on lookup
	if b.c.Len() >= memoryBlacklistPruneAt {
		b.c.Prune()
	}

	b.c.SetWithTTL(jti, struct{}{}, ttl)
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	_, ok := b.c.Get(jti)
	return ok, nil
}
