package task

import (
	"hashmine/pkg/config"
	"hashmine/services/contract"
	"hashmine/services/pricefeed"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("task.service",
	fx.Provide(
		func(c *contract.Service) ContractExpirer { return c },
		func(f *pricefeed.Feed) PriceRefresher { return f },
		NewService,
	),
	fx.Invoke(Migrate),
)

// Worker wires the handlers and periodic entries into the asynq server and
// scheduler.
var Worker = fx.Module("task.worker",
	fx.Invoke(
		RegisterHandlers,
		func(s *asynq.Scheduler, cfg *config.Config) error { return RegisterPeriodic(s, cfg) },
	),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&TaskRun{})
}
