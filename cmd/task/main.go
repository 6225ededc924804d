package main

import (
	"log"

	"hashmine/pkg/config"
	"hashmine/pkg/db"
	"hashmine/pkg/gen"
	"hashmine/pkg/logger"
	"hashmine/pkg/otelcol"
	"hashmine/pkg/profiling"
	"hashmine/pkg/redis"
	"hashmine/pkg/task"
	"hashmine/services/contract"
	"hashmine/services/pricefeed"
	taskservice "hashmine/services/task"

	"github.com/facebookgo/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		fx.Provide(clock.New),

		task.Server,
		task.Scheduler,

		contract.Module,
		pricefeed.Module,
		taskservice.Module,
		taskservice.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
