package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hashmine/pkg/db/option"
	"hashmine/pkg/errutil"
	"hashmine/pkg/repository"
	pkgtask "hashmine/pkg/task"
	"hashmine/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/facebookgo/clock"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ContractExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type PriceRefresher interface {
	Refresh(ctx context.Context, symbols ...string) (int, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     clock.Clock
	contracts ContractExpirer
	prices    PriceRefresher
	enqueuer  pkgtask.Enqueuer

	run repository.Repository[TaskRun]
}

type Params struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     clock.Clock `optional:"true"`
	Contracts ContractExpirer
	Prices    PriceRefresher
	Enqueuer  pkgtask.Enqueuer `optional:"true"`
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		clock:     c,
		contracts: p.Contracts,
		prices:    p.Prices,
		enqueuer:  p.Enqueuer,

		run: repository.ProvideStore[TaskRun](p.DB),
	}
}

// HandleContractExpireSweep is the asynq handler deactivating contracts
// whose end date has passed.
func (s *Service) HandleContractExpireSweep(ctx context.Context, t *asynq.Task) error {
	return s.record(ctx, taskname.ContractExpireSweep, func(ctx context.Context) (map[string]any, error) {
		n, err := s.contracts.ExpireDue(ctx, s.clock.Now())
		if err != nil {
			return nil, err
		}
		return map[string]any{"expired": n}, nil
	})
}

// HandlePriceRefresh is the asynq handler pulling live prices into the feed.
func (s *Service) HandlePriceRefresh(ctx context.Context, t *asynq.Task) error {
	return s.record(ctx, taskname.PriceRefresh, func(ctx context.Context) (map[string]any, error) {
		n, err := s.prices.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"refreshed": n}, nil
	})
}

// record wraps fn in a TaskRun row. A failing fn marks the run failed and its
// error is returned so asynq retries.
func (s *Service) record(ctx context.Context, name string, fn func(context.Context) (map[string]any, error)) error {
	started := s.clock.Now().UTC()
	run := &TaskRun{
		ID:        s.node.Generate().String(),
		TaskName:  name,
		Status:    RunStatusRunning,
		StartedAt: &started,
	}
	if err := s.run.Create(ctx, run); err != nil {
		return fmt.Errorf("create task run: %w", err)
	}

	zap.L().Info("Processing task", zap.String("task", name), zap.String("run_id", run.ID))

	meta, err := fn(ctx)
	completed := s.clock.Now().UTC()
	updates := map[string]any{"completed_at": completed}
	if err != nil {
		updates["status"] = RunStatusFailed
		updates["error_msg"] = err.Error()
	} else {
		updates["status"] = RunStatusSuccess
		if raw, mErr := json.Marshal(meta); mErr == nil {
			updates["metadata"] = raw
		}
	}

	if uErr := s.run.Update(ctx, run.ID, updates); uErr != nil {
		zap.L().Error("failed to update task run", zap.String("run_id", run.ID), zap.Error(uErr))
	}

	if err != nil {
		zap.L().Error("task failed", zap.String("task", name), zap.String("run_id", run.ID), zap.Error(err))
		return err
	}

	zap.L().Info("Finished task",
		zap.String("task", name),
		zap.String("run_id", run.ID),
		zap.Duration("duration", completed.Sub(started)),
		zap.Any("result", meta),
	)
	return nil
}

// Trigger enqueues a one-off run of a known task.
func (s *Service) Trigger(ctx context.Context, name string) (string, error) {
	if name != taskname.ContractExpireSweep && name != taskname.PriceRefresh {
		return "", errutil.NotFound(fmt.Sprintf("unknown task %q", name), nil)
	}
	if s.enqueuer == nil {
		return "", errutil.NotImplemented("task queue is not configured", nil)
	}

	info, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(name, nil), asynq.Queue("critical"), asynq.MaxRetry(3))
	if err != nil {
		zap.L().Error("failed to enqueue task", zap.String("task", name), zap.Error(err))
		return "", err
	}

	zap.L().Info("enqueued task", zap.String("task", name), zap.String("task_id", info.ID))
	return info.ID, nil
}

// ListRuns returns the latest runs, optionally of one task.
func (s *Service) ListRuns(ctx context.Context, name string, limit int) ([]*TaskRun, error) {
	query := &TaskRun{}
	if name != "" {
		query.TaskName = name
	}
	return s.run.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}),
		option.WithLimit(limit),
	)
}
