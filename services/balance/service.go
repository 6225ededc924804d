package balance

import (
	"context"
	"fmt"
	"strings"

	"hashmine/pkg/errutil"
	"hashmine/pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// balanceSQL folds ledger credits and withdrawals into one statement so a
// view is always a single snapshot. %s is an optional currency filter.
const balanceSQL = `
SELECT currency,
	COALESCE(SUM(earned), 0) AS earned,
	COALESCE(SUM(earned_usd), 0) AS earned_usd,
	COALESCE(SUM(withdrawn), 0) AS withdrawn,
	COALESCE(SUM(withdrawn_usd), 0) AS withdrawn_usd,
	COALESCE(SUM(reserved), 0) AS reserved
FROM (
	SELECT currency,
		amount AS earned,
		usd_value AS earned_usd,
		0 AS withdrawn,
		0 AS withdrawn_usd,
		0 AS reserved
	FROM earnings_ledger_entries
	WHERE user_id = @user%[1]s
	UNION ALL
	SELECT ledger_currency AS currency,
		0 AS earned,
		0 AS earned_usd,
		CASE WHEN status = @completed THEN ledger_amount ELSE 0 END AS withdrawn,
		CASE WHEN status = @completed THEN usd_value ELSE 0 END AS withdrawn_usd,
		CASE WHEN status IN (@pending, @processing) THEN ledger_amount ELSE 0 END AS reserved
	FROM withdrawals
	WHERE user_id = @user AND status IN (@pending, @processing, @completed)%[2]s
) balance_rows
GROUP BY currency
ORDER BY currency`

type Service struct {
	db    *gorm.DB
	cache Cache
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Cache Cache `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		cache: p.Cache,
	}
}

// Balance returns one view per currency the user has activity in. Reads may
// be served from the cache: withdrawal changes show up at once, accrual
// credits within the cache TTL.
func (s *Service) Balance(ctx context.Context, userID string) ([]CurrencyBalance, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	if s.cache == nil {
		return s.query(ctx, s.db, userID, "")
	}

	log := zap.L().With(logger.TraceFields(ctx)...).With(zap.String("user_id", userID))

	// the version is read before the query so a view that raced a bump is
	// stored under the old version
	version, err := s.cache.Version(ctx, userID)
	if err != nil {
		log.Warn("balance cache version read failed", zap.Error(err))
		return s.query(ctx, s.db, userID, "")
	}

	cached, ok, err := s.cache.Get(ctx, userID, version)
	if err != nil {
		log.Warn("balance cache read failed", zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	views, err := s.query(ctx, s.db, userID, "")
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, version, views); err != nil {
		log.Warn("balance cache write failed", zap.Error(err))
	}
	return views, nil
}

// BalanceOf returns the view for one currency, zero when there is no activity.
func (s *Service) BalanceOf(ctx context.Context, userID, currency string) (CurrencyBalance, error) {
	views, err := s.Balance(ctx, userID)
	if err != nil {
		return CurrencyBalance{}, err
	}
	currency = strings.ToUpper(currency)
	for _, v := range views {
		if v.Currency == currency {
			return v, nil
		}
	}
	return Zero(currency), nil
}

// BalanceOfTx reads the view inside tx and never touches the cache.
// Withdrawal admission relies on it.
func (s *Service) BalanceOfTx(ctx context.Context, tx *gorm.DB, userID, currency string) (CurrencyBalance, error) {
	if userID == "" {
		return CurrencyBalance{}, errutil.BadRequest("user id is required", nil)
	}
	if tx == nil {
		tx = s.db
	}
	currency = strings.ToUpper(currency)
	views, err := s.query(ctx, tx, userID, currency)
	if err != nil {
		return CurrencyBalance{}, err
	}
	if len(views) == 0 {
		return Zero(currency), nil
	}
	return views[0], nil
}

// Invalidate retires the cached views of a user, including any view still
// being computed.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, userID); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("balance cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) query(ctx context.Context, db *gorm.DB, userID, currency string) ([]CurrencyBalance, error) {
	args := map[string]any{
		"user":       userID,
		"pending":    statusPending,
		"processing": statusProcessing,
		"completed":  statusCompleted,
	}

	var ledgerFilter, withdrawalFilter string
	if currency != "" {
		args["currency"] = currency
		ledgerFilter = " AND currency = @currency"
		withdrawalFilter = " AND ledger_currency = @currency"
	}

	var rows []row
	err := db.WithContext(ctx).
		Raw(fmt.Sprintf(balanceSQL, ledgerFilter, withdrawalFilter), args).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}

	views := make([]CurrencyBalance, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.view())
	}
	return views, nil
}
