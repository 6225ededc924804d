package balance

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"hashmine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// Cache stores balance views per user under a version. Bump moves the user
// to a new version, so a view computed before the bump is written where no
// reader looks.
type Cache interface {
	Version(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string, version int64) ([]CurrencyBalance, bool, error)
	Set(ctx context.Context, userID string, version int64, views []CurrencyBalance) error
	Bump(ctx context.Context, userID string) error
}

// versionTTL outlives any cached view, so an expired version never
// resurrects an old entry.
const versionTTL = 24 * time.Hour

type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	jitter time.Duration
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, jitter: ttl / 5}
}

func (c *RedisCache) Version(ctx context.Context, userID string) (int64, error) {
	v, err := c.rdb.Get(ctx, rediskey.BuildBalanceVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCache) Get(ctx context.Context, userID string, version int64) ([]CurrencyBalance, bool, error) {
	key := rediskey.BuildBalanceKey(userID, version)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var views []CurrencyBalance
	if err := json.Unmarshal(raw, &views); err != nil {
		// drop the corrupt entry so it is not hit again
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false, err
	}
	return views, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, version int64, views []CurrencyBalance) error {
	raw, err := json.Marshal(views)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, rediskey.BuildBalanceKey(userID, version), raw, withJitter(c.ttl, c.jitter)).Err()
}

func (c *RedisCache) Bump(ctx context.Context, userID string) error {
	key := rediskey.BuildBalanceVersionKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, versionTTL)
		return nil
	})
	return err
}

// withJitter spreads expiries over [ttl, ttl+jitter).
func withJitter(ttl, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
