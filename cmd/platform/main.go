package main

import (
	"log"

	"hashmine/internal/httpapi"
	"hashmine/pkg/config"
	"hashmine/pkg/db"
	"hashmine/pkg/gen"
	"hashmine/pkg/health"
	"hashmine/pkg/logger"
	"hashmine/pkg/otelcol"
	"hashmine/pkg/profiling"
	"hashmine/pkg/redis"
	"hashmine/pkg/sequence"
	"hashmine/pkg/server"
	"hashmine/pkg/task"
	"hashmine/services/accrual"
	"hashmine/services/balance"
	"hashmine/services/contract"
	"hashmine/services/deposit"
	"hashmine/services/ledger"
	"hashmine/services/plan"
	"hashmine/services/pricefeed"
	taskservice "hashmine/services/task"
	"hashmine/services/withdrawal"

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
		sequence.Module,
		health.Module,
		task.Client,
		fx.Provide(clock.New),

		plan.Module,
		contract.Module,
		ledger.Module,
		pricefeed.Module,
		balance.Module,
		withdrawal.Module,
		deposit.Module,
		taskservice.Module,
		accrual.Module,

		server.ProvideHTTPServer,
		httpapi.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
