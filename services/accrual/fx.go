package accrual

import (
	"context"

	"hashmine/pkg/config"
	"hashmine/pkg/lock"
	"hashmine/services/contract"
	"hashmine/services/ledger"
	"hashmine/services/pricefeed"

	"github.com/facebookgo/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("accrual",
	fx.Provide(
		provideJob,
		provideScheduler,
	),
	fx.Invoke(registerScheduler),
)

type jobParams struct {
	fx.In
	DB        *gorm.DB
	Config    *config.Config
	Contracts *contract.Service
	Ledger    *ledger.Service
	Prices    *pricefeed.Feed
}

func provideJob(p jobParams) *Job {
	return NewJob(p.DB, p.Contracts, p.Ledger, p.Prices, JobOptions{
		Period:      p.Config.Accrual.TickPeriod,
		Concurrency: p.Config.Accrual.Concurrency,
	})
}

type schedulerParams struct {
	fx.In
	Config *config.Config
	Job    *Job
	Clock  clock.Clock   `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

func provideScheduler(p schedulerParams) *Scheduler {
	opts := SchedulerOptions{
		Clock:  p.Clock,
		Period: p.Config.Accrual.TickPeriod,
	}
	if p.Config.Accrual.DistributedLock && p.Redis != nil {
		opts.Locker = lock.NewRedis(p.Redis, p.Config.Accrual.LockTTL)
	}
	return NewScheduler(p.Job, opts)
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// the start context expires once the app is up
			return s.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
