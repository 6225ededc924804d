package balance

import (
	"hashmine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("balance",
	fx.Provide(
		provideCache,
		NewService,
	),
)

type cacheParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

type cacheResult struct {
	fx.Out
	Cache Cache
}

// provideCache enables the redis cache when redis is wired and BALANCE.CACHE_TTL
// is positive.
func provideCache(p cacheParams) cacheResult {
	if p.Redis == nil || p.Config.Balance.CacheTTL <= 0 {
		return cacheResult{}
	}
	return cacheResult{Cache: NewRedisCache(p.Redis, p.Config.Balance.CacheTTL)}
}
