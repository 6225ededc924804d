package main

import (
	"context"
	"log"
	"time"

	"hashmine/pkg/config"
	"hashmine/pkg/db"
	"hashmine/pkg/gen"
	"hashmine/pkg/logger"
	"hashmine/services/plan"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var defaultPlans = []plan.CreateParams{
	{Name: "Starter", Currency: "BTC", Price: decimal.NewFromInt(100), DailyRate: decimal.RequireFromString("0.000028"), ContractPeriodDays: 30},
	{Name: "Pro", Currency: "BTC", Price: decimal.NewFromInt(500), DailyRate: decimal.RequireFromString("0.00015"), ContractPeriodDays: 90},
	{Name: "Ether Flex", Currency: "ETH", Price: decimal.NewFromInt(250), DailyRate: decimal.RequireFromString("0.0012"), ContractPeriodDays: 60},
}

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		plan.Module,
		fx.Invoke(seed),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(ctx)
}

func seed(svc *plan.Service) error {
	ctx := context.Background()
	for _, p := range defaultPlans {
		created, isNew, err := svc.Ensure(ctx, p)
		if err != nil {
			return err
		}
		zap.L().Info("plan seeded", zap.String("plan_id", created.ID), zap.String("name", created.Name), zap.Bool("created", isNew))
	}
	return nil
}
