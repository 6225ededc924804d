package withdrawal

import (
	"hashmine/pkg/config"
	"hashmine/pkg/lock"
	"hashmine/pkg/sequence"
	"hashmine/services/balance"
	"hashmine/services/pricefeed"

	"github.com/bwmarrin/snowflake"
	"github.com/facebookgo/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(provideService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Withdrawal{})
}

type serviceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Balances *balance.Service
	Prices   *pricefeed.Feed
	Codes    sequence.Generator
	Clock    clock.Clock   `optional:"true"`
	Redis    *redis.Client `optional:"true"`
}

// provideService uses a redis lock when WITHDRAWAL.DISTRIBUTED_LOCK is set so
// admission stays serialised across API replicas.
func provideService(p serviceParams) *Service {
	var locker lock.Locker = lock.NewLocal()
	if p.Config.Withdrawal.DistributedLock && p.Redis != nil {
		locker = lock.NewRedis(p.Redis, p.Config.Withdrawal.LockTTL)
	}

	return NewService(p.DB, p.Node, Options{
		Balances:     p.Balances,
		Prices:       p.Prices,
		Locker:       locker,
		Codes:        p.Codes,
		Clock:        p.Clock,
		BaseCurrency: p.Config.Ledger.BaseCurrency,
	})
}
