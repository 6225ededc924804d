package task

import (
	"hashmine/pkg/config"
	"hashmine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterHandlers routes task types to the service handlers.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.ContractExpireSweep, s.HandleContractExpireSweep)
	mux.HandleFunc(taskname.PriceRefresh, s.HandlePriceRefresh)
}

// RegisterPeriodic schedules the recurring tasks. An empty spec disables the
// task.
func RegisterPeriodic(scheduler Registrar, cfg *config.Config) error {
	entries := []struct {
		spec string
		name string
	}{
		{cfg.Tasks.ExpirySpec, taskname.ContractExpireSweep},
		{cfg.Tasks.PriceRefreshSpec, taskname.PriceRefresh},
	}

	for _, e := range entries {
		if e.spec == "" {
			zap.L().Info("[Task] periodic task disabled", zap.String("task", e.name))
			continue
		}
		id, err := scheduler.Register(e.spec, asynq.NewTask(e.name, nil), asynq.Queue("default"), asynq.MaxRetry(1))
		if err != nil {
			return err
		}
		zap.L().Info("[Task] periodic task registered",
			zap.String("task", e.name),
			zap.String("spec", e.spec),
			zap.String("entry_id", id),
		)
	}
	return nil
}
