package plan

import (
	"context"
	"errors"
	"strings"

	"hashmine/pkg/db/option"
	"hashmine/pkg/errutil"
	"hashmine/pkg/logger"
	"hashmine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	plan repository.Repository[Plan]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		plan: repository.ProvideStore[Plan](p.DB),
	}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Plan, error) {
	opts := []option.QueryOption{option.WithSortBy(option.QuerySortBy{SortBy: "price", OrderBy: "ASC"})}
	if !includeInactive {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}))
	}

	plans, err := s.plan.Find(ctx, nil, opts...)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to list plans", zap.Error(err))
		return nil, err
	}
	return plans, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	return s.get(ctx, s.plan, id)
}

// GetTx reads a plan inside the caller's transaction.
func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, id string) (*Plan, error) {
	return s.get(ctx, s.plan.WithTrx(tx), id)
}

func (s *Service) get(ctx context.Context, repo repository.Repository[Plan], id string) (*Plan, error) {
	if id == "" {
		return nil, errutil.BadRequest("plan id is required", nil)
	}
	p, err := repo.FindOne(ctx, &Plan{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("plan not found", nil)
	}
	return p, nil
}

func validate(p CreateParams) error {
	var details []errutil.Detail
	if strings.TrimSpace(p.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "must not be empty"})
	}
	if strings.TrimSpace(p.Currency) == "" {
		details = append(details, errutil.Detail{Field: "currency", Message: "must not be empty"})
	}
	if p.Price.IsNegative() {
		details = append(details, errutil.Detail{Field: "price", Message: "must not be negative"})
	}
	if !p.DailyRate.IsPositive() {
		details = append(details, errutil.Detail{Field: "daily_rate", Message: "must be positive"})
	}
	if p.ContractPeriodDays <= 0 {
		details = append(details, errutil.Detail{Field: "contract_period_days", Message: "must be positive"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid plan", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Plan, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	exist, err := s.plan.FindOne(ctx, &Plan{Name: p.Name})
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return nil, errutil.Conflict("plan name already exists", nil)
	}

	newPlan := &Plan{
		ID:                 s.node.Generate().String(),
		Name:               strings.TrimSpace(p.Name),
		Currency:           strings.ToUpper(strings.TrimSpace(p.Currency)),
		Price:              p.Price,
		DailyRate:          p.DailyRate,
		ContractPeriodDays: p.ContractPeriodDays,
		IsActive:           true,
	}
	if err := s.plan.Create(ctx, newPlan); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create plan", zap.Error(err))
		return nil, err
	}

	zap.L().Info("plan created", zap.String("plan_id", newPlan.ID), zap.String("name", newPlan.Name))
	return newPlan, nil
}

// Ensure creates the plan unless one with the same name already exists.
func (s *Service) Ensure(ctx context.Context, p CreateParams) (*Plan, bool, error) {
	exist, err := s.plan.FindOne(ctx, &Plan{Name: p.Name})
	if err != nil {
		return nil, false, err
	}
	if exist != nil {
		return exist, false, nil
	}

	created, err := s.Create(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Plan, error) {
	if err := s.plan.Update(ctx, id, map[string]any{"is_active": active}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("plan not found", nil)
		}
		return nil, err
	}

	zap.L().Info("plan activation changed", zap.String("plan_id", id), zap.Bool("active", active))
	return s.Get(ctx, id)
}
