package deposit

import (
	"context"
	"fmt"
	"strings"

	"hashmine/pkg/db/option"
	"hashmine/pkg/errutil"
	"hashmine/pkg/logger"
	"hashmine/pkg/repository"
	"hashmine/pkg/sequence"
	"hashmine/services/contract"
	"hashmine/services/plan"

	"github.com/bwmarrin/snowflake"
	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Plans interface {
	Get(ctx context.Context, id string) (*plan.Plan, error)
	GetTx(ctx context.Context, tx *gorm.DB, id string) (*plan.Plan, error)
}

type Contracts interface {
	Create(ctx context.Context, tx *gorm.DB, p contract.CreateParams) (*contract.Contract, error)
}

type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (converted, rate decimal.Decimal, err error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	plans     Plans
	contracts Contracts
	prices    Converter
	codes     sequence.Generator
	clock     clock.Clock

	deposit repository.Repository[Deposit]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Plans     *plan.Service
	Contracts *contract.Service
	Prices    Converter
	Codes     sequence.Generator
	Clock     clock.Clock `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		plans:     p.Plans,
		contracts: p.Contracts,
		prices:    p.Prices,
		codes:     p.Codes,
		clock:     c,

		deposit: repository.ProvideStore[Deposit](p.DB),
	}
}

func validateSubmit(p SubmitParams) error {
	var details []errutil.Detail
	if p.UserID == "" {
		details = append(details, errutil.Detail{Field: "user_id", Message: "must not be empty"})
	}
	if p.PlanID == "" {
		details = append(details, errutil.Detail{Field: "plan_id", Message: "must not be empty"})
	}
	if !p.Amount.IsPositive() {
		details = append(details, errutil.Detail{Field: "amount", Message: "must be positive"})
	}
	if strings.TrimSpace(p.Currency) == "" {
		details = append(details, errutil.Detail{Field: "currency", Message: "must not be empty"})
	}
	if strings.TrimSpace(p.TransactionHash) == "" {
		details = append(details, errutil.Detail{Field: "transaction_hash", Message: "must not be empty"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid deposit", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Submit records a payment for an active plan. The amount must cover the
// plan price once converted into the deposit currency.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*Deposit, error) {
	if err := validateSubmit(p); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	hash := strings.TrimSpace(p.TransactionHash)

	pl, err := s.plans.Get(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	if !pl.IsActive {
		return nil, errutil.UnprocessableEntity("plan is not available", nil)
	}

	required, _, err := s.prices.Convert(ctx, pl.Price, "USD", currency)
	if err != nil {
		return nil, errutil.BadRequest(fmt.Sprintf("cannot price plan in %s", currency), err)
	}
	if p.Amount.LessThan(required) {
		return nil, errutil.ValidationFailed("deposit does not cover the plan price", nil, errutil.WithDetails(
			errutil.Detail{Field: "amount", Message: fmt.Sprintf("at least %s %s", required.StringFixed(8), currency)},
		))
	}

	exist, err := s.deposit.FindOne(ctx, &Deposit{TransactionHash: hash})
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return nil, errutil.Conflict("transaction hash already submitted", nil)
	}

	reference, err := s.codes.NextDepositCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("deposit reference: %w", err)
	}

	d := &Deposit{
		ID:              s.node.Generate().String(),
		Reference:       reference,
		UserID:          p.UserID,
		PlanID:          pl.ID,
		Amount:          p.Amount,
		Currency:        currency,
		TransactionHash: hash,
		Status:          StatusPending,
	}
	if err := s.deposit.Create(ctx, d); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create deposit", zap.Error(err))
		return nil, err
	}

	zap.L().Info("deposit submitted",
		zap.String("deposit_id", d.ID),
		zap.String("user_id", d.UserID),
		zap.String("plan_id", d.PlanID),
	)
	return d, nil
}

// Approve accepts a pending deposit and starts its contract in the same
// transaction. Approving it again returns the stored record.
func (s *Service) Approve(ctx context.Context, id string) (*Deposit, error) {
	if id == "" {
		return nil, errutil.BadRequest("deposit id is required", nil)
	}
	now := s.clock.Now().UTC()

	var approved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.deposit.WithTrx(tx)

		d, err := repo.FindOne(ctx, &Deposit{ID: id})
		if err != nil {
			return err
		}
		if d == nil {
			return errutil.NotFound("deposit not found", nil)
		}

		res := tx.WithContext(ctx).Model(&Deposit{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]any{"status": StatusApproved, "reviewed_at": now})
		if res.Error != nil {
			return fmt.Errorf("approve deposit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if d.Status == StatusApproved {
				return nil
			}
			return errutil.Conflict(fmt.Sprintf("cannot approve a %s deposit", d.Status), nil)
		}

		pl, err := s.plans.GetTx(ctx, tx, d.PlanID)
		if err != nil {
			return err
		}
		c, err := s.contracts.Create(ctx, tx, contract.CreateParams{
			UserID:     d.UserID,
			PlanID:     pl.ID,
			DepositID:  d.ID,
			Currency:   pl.Currency,
			DailyRate:  pl.DailyRate,
			PeriodDays: pl.ContractPeriodDays,
			StartDate:  now,
		})
		if err != nil {
			return err
		}

		approved = true
		return repo.Update(ctx, d.ID, map[string]any{"contract_id": c.ID})
	})
	if err != nil {
		return nil, err
	}

	if approved {
		zap.L().Info("deposit approved", zap.String("deposit_id", id))
	}
	return s.Get(ctx, id)
}

func (s *Service) Reject(ctx context.Context, id, reason string) (*Deposit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.ValidationFailed("reason is required", nil)
	}

	res := s.db.WithContext(ctx).Model(&Deposit{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":        StatusRejected,
			"reject_reason": reason,
			"reviewed_at":   s.clock.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("reject deposit: %w", res.Error)
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && d.Status != StatusRejected {
		return nil, errutil.Conflict(fmt.Sprintf("cannot reject a %s deposit", d.Status), nil)
	}

	zap.L().Info("deposit rejected", zap.String("deposit_id", id))
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Deposit, error) {
	if id == "" {
		return nil, errutil.BadRequest("deposit id is required", nil)
	}
	d, err := s.deposit.FindOne(ctx, &Deposit{ID: id})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errutil.NotFound("deposit not found", nil)
	}
	return d, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Deposit, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	return s.deposit.Find(ctx, &Deposit{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}),
	)
}

// ListPending is the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*Deposit, error) {
	return s.deposit.Find(ctx, &Deposit{Status: StatusPending},
		option.WithSortBy(option.QuerySortBy{OrderBy: "ASC"}),
	)
}
