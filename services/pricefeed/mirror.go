package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hashmine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// Mirror shares last-known quotes between processes.
type Mirror interface {
	Load(ctx context.Context, symbol string) (*Quote, error)
	Store(ctx context.Context, q Quote) error
}

// RedisMirror stores quotes under price:{SYMBOL}.
type RedisMirror struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisMirror(rdb redis.Cmdable) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: 24 * time.Hour}
}

func (m *RedisMirror) Load(ctx context.Context, symbol string) (*Quote, error) {
	raw, err := m.rdb.Get(ctx, rediskey.BuildPriceKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (m *RedisMirror) Store(ctx context.Context, q Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, rediskey.BuildPriceKey(q.Symbol), raw, m.ttl).Err()
}
