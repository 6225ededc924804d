package lock

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unlockScript deletes the key only when it still carries our token.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Redis is a SETNX lock shared by every process using the same redis.
// Holders must finish within TTL; the key expires on its own otherwise.
type Redis struct {
	client        redis.Cmdable
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client:        client,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
	}
}

func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return r.unlocker(key, token), true, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	for {
		unlock, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}

		sleep := r.retryInterval + time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-time.After(sleep):
		}
	}
}

func (r *Redis) unlocker(key, token string) Unlock {
	return func() {
		// the caller's ctx may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := r.client.Eval(ctx, unlockScript, []string{key}, token).Err(); err != nil {
			zap.L().Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
}
