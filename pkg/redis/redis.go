package redis

import (
	"context"
	"fmt"
	"time"

	"hashmine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingInterval = 3 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// New connects the shared client used for locks, the balance cache, the
// price mirror and reference codes. Startup fails when redis stays
// unreachable.
func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	if err := waitReady(context.Background(), rdb, pingAttempts, pingInterval, log); err != nil {
		_ = rdb.Close()
		log.Error("[Redis] giving up", zap.Error(err))
		return nil, err
	}
	log.Info("[Redis] connected")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb, nil
}

func waitReady(ctx context.Context, p pinger, attempts int, interval time.Duration, log *zap.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = p.Ping(ctx).Err(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn("[Redis] not ready, retrying", zap.Int("attempt", i), zap.Duration("in", interval), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("redis ping failed after %d attempts: %w", attempts, err)
}
