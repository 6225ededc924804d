package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hashmine/pkg/db/option"
	"hashmine/pkg/errutil"
	"hashmine/pkg/logger"
	"hashmine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	contract repository.Repository[Contract]
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

		contract: repository.ProvideStore[Contract](p.DB),
	}
}

// Create stores a new active contract. tx may be nil.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, p CreateParams) (*Contract, error) {
	if p.UserID == "" || p.PlanID == "" {
		return nil, errutil.BadRequest("user_id and plan_id are required", nil)
	}
	if !p.DailyRate.IsPositive() || p.PeriodDays <= 0 {
		return nil, errutil.ValidationFailed("contract needs a positive rate and period", nil)
	}

	start := p.StartDate.UTC()
	c := &Contract{
		ID:            s.node.Generate().String(),
		UserID:        p.UserID,
		PlanID:        p.PlanID,
		Currency:      strings.ToUpper(p.Currency),
		DailyRate:     p.DailyRate,
		StartDate:     start,
		EndDate:       start.Add(time.Duration(p.PeriodDays) * 24 * time.Hour),
		LastAccrualAt: start,
		IsActive:      true,
		TotalEarnings: decimal.Zero,
	}
	if p.DepositID != "" {
		depositID := p.DepositID
		c.DepositID = &depositID
	}

	if err := s.contract.WithTrx(tx).Create(ctx, c); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create contract", zap.Error(err))
		return nil, fmt.Errorf("create contract: %w", err)
	}

	zap.L().Info("contract created",
		zap.String("contract_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("plan_id", c.PlanID),
		zap.Time("end_date", c.EndDate),
	)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Contract, error) {
	if id == "" {
		return nil, errutil.BadRequest("contract id is required", nil)
	}
	c, err := s.contract.FindOne(ctx, &Contract{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("contract not found", nil)
	}
	return c, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Contract, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	return s.contract.Find(ctx, &Contract{UserID: userID}, option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
}

// ListActive returns contracts eligible for accrual at now. It is evaluated
// against the database on every call.
func (s *Service) ListActive(ctx context.Context, now time.Time) ([]*Contract, error) {
	now = now.UTC()
	return s.contract.Find(ctx, nil,
		option.ApplyOperator(
			option.Condition{Field: "is_active", Operator: option.EQ, Value: true},
			option.Condition{Field: "start_date", Operator: option.LTE, Value: now},
			option.Condition{Field: "end_date", Operator: option.GTE, Value: now},
		),
		option.WithSortBy(option.QuerySortBy{SortBy: "start_date", OrderBy: "ASC"}),
	)
}

// Deactivate cancels a contract. Accrual stops from the next tick.
func (s *Service) Deactivate(ctx context.Context, id string) (*Contract, error) {
	if err := s.contract.Update(ctx, id, map[string]any{"is_active": false}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("contract not found", nil)
		}
		return nil, err
	}

	zap.L().Info("contract deactivated", zap.String("contract_id", id))
	return s.Get(ctx, id)
}

// ExpireDue flags every active contract whose end date has passed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Contract{}).
		Where("is_active = ? AND end_date < ?", true, now.UTC()).
		Updates(map[string]any{"is_active": false})
	if res.Error != nil {
		return 0, fmt.Errorf("expire contracts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AdvanceAccrual moves the accrual watermark of c to at and adds amount to
// the running total. It only succeeds when nobody advanced the contract since
// c was read and the contract is still active and not past at.
func (s *Service) AdvanceAccrual(ctx context.Context, tx *gorm.DB, c *Contract, at time.Time, amount decimal.Decimal) (bool, error) {
	db := s.db
	if tx != nil {
		db = tx
	}

	res := db.WithContext(ctx).Model(&Contract{}).
		Where("id = ? AND accrual_seq = ? AND is_active = ? AND end_date >= ?", c.ID, c.AccrualSeq, true, at.UTC()).
		Updates(map[string]any{
			"last_accrual_at": at.UTC(),
			"total_earnings":  gorm.Expr("total_earnings + ?", amount),
			"accrual_seq":     gorm.Expr("accrual_seq + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("advance accrual: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
