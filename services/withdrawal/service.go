package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hashmine/pkg/db/option"
	"hashmine/pkg/errutil"
	"hashmine/pkg/lock"
	"hashmine/pkg/logger"
	"hashmine/pkg/rediskey"
	"hashmine/pkg/repository"
	"hashmine/pkg/sequence"
	"hashmine/services/balance"
	"hashmine/services/pricefeed"

	"github.com/bwmarrin/snowflake"
	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInsufficientBalance is the cause of a rejected admission.
var ErrInsufficientBalance = errors.New("requested amount exceeds the available balance")

type Balances interface {
	BalanceOfTx(ctx context.Context, tx *gorm.DB, userID, currency string) (balance.CurrencyBalance, error)
	Invalidate(ctx context.Context, userID string)
}

type PriceProvider interface {
	Prices(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error)
}

type Service struct {
	db           *gorm.DB
	node         *snowflake.Node
	balances     Balances
	prices       PriceProvider
	locker       lock.Locker
	codes        sequence.Generator
	clock        clock.Clock
	baseCurrency string

	withdrawal repository.Repository[Withdrawal]
}

type Options struct {
	Balances Balances
	Prices   PriceProvider
	Locker   lock.Locker
	Codes    sequence.Generator
	Clock    clock.Clock
	// BaseCurrency is debited when the user holds no ledger in the requested
	// currency.
	BaseCurrency string
}

func NewService(db *gorm.DB, node *snowflake.Node, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	return &Service{
		db:           db,
		node:         node,
		balances:     opts.Balances,
		prices:       opts.Prices,
		locker:       opts.Locker,
		codes:        opts.Codes,
		clock:        opts.Clock,
		baseCurrency: strings.ToUpper(opts.BaseCurrency),

		withdrawal: repository.ProvideStore[Withdrawal](db),
	}
}

func validateRequest(p RequestParams) error {
	var details []errutil.Detail
	if p.UserID == "" {
		details = append(details, errutil.Detail{Field: "user_id", Message: "must not be empty"})
	}
	if !p.Amount.IsPositive() {
		details = append(details, errutil.Detail{Field: "amount", Message: "must be positive"})
	}
	if strings.TrimSpace(p.Currency) == "" {
		details = append(details, errutil.Detail{Field: "currency", Message: "must not be empty"})
	}
	if strings.TrimSpace(p.WalletAddress) == "" {
		details = append(details, errutil.Detail{Field: "wallet_address", Message: "must not be empty"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid withdrawal request", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Request admits a withdrawal when its ledger amount fits in the available
// balance. Requests of one user are serialised; a rejected request writes
// nothing.
func (s *Service) Request(ctx context.Context, p RequestParams) (*Withdrawal, error) {
	if err := validateRequest(p); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	log := zap.L().With(logger.TraceFields(ctx)...).With(zap.String("user_id", p.UserID), zap.String("currency", currency))

	unlock, err := s.locker.Lock(ctx, rediskey.BuildWithdrawalLockKey(p.UserID))
	if err != nil {
		requestsTotal.WithLabelValues("lock_failed").Inc()
		return nil, errutil.TooManyRequest("another withdrawal of this user is being admitted", err)
	}
	defer unlock()

	ledgerCurrency, err := s.ledgerCurrency(ctx, p.UserID, currency)
	if err != nil {
		return nil, err
	}

	ledgerAmount, rate, usdValue, err := s.quote(ctx, p.Amount, currency, ledgerCurrency)
	if err != nil {
		return nil, err
	}
	if !ledgerAmount.IsPositive() {
		requestsTotal.WithLabelValues("invalid").Inc()
		return nil, errutil.ValidationFailed("invalid withdrawal request", nil, errutil.WithDetails(
			errutil.Detail{Field: "amount", Message: fmt.Sprintf("must be worth more than zero %s", ledgerCurrency)},
		))
	}

	reference, err := s.codes.NextWithdrawalCode(ctx)
	if err != nil {
		log.Error("failed to generate withdrawal reference", zap.Error(err))
		return nil, fmt.Errorf("withdrawal reference: %w", err)
	}

	w := &Withdrawal{
		ID:             s.node.Generate().String(),
		Reference:      reference,
		UserID:         p.UserID,
		Amount:         p.Amount,
		Currency:       currency,
		LedgerCurrency: ledgerCurrency,
		LedgerAmount:   ledgerAmount,
		ExchangeRate:   rate,
		UsdValue:       usdValue,
		WalletAddress:  strings.TrimSpace(p.WalletAddress),
		Status:         StatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.balances.BalanceOfTx(ctx, tx, p.UserID, ledgerCurrency)
		if err != nil {
			return err
		}
		if ledgerAmount.GreaterThan(view.Available) {
			return errutil.UnprocessableEntity("insufficient balance", ErrInsufficientBalance, errutil.WithDetails(
				errutil.Detail{Field: "amount", Message: fmt.Sprintf("requested %s %s, available %s %s",
					ledgerAmount.String(), ledgerCurrency, view.Available.String(), ledgerCurrency)},
			))
		}
		return s.withdrawal.WithTrx(tx).Create(ctx, w)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			requestsTotal.WithLabelValues("insufficient").Inc()
			log.Info("withdrawal rejected at admission", zap.String("amount", p.Amount.String()))
			return nil, err
		}
		requestsTotal.WithLabelValues("error").Inc()
		log.Error("failed to admit withdrawal", zap.Error(err))
		return nil, err
	}

	requestsTotal.WithLabelValues("admitted").Inc()
	s.balances.Invalidate(ctx, p.UserID)

	log.Info("withdrawal admitted",
		zap.String("withdrawal_id", w.ID),
		zap.String("reference", w.Reference),
		zap.String("ledger_currency", ledgerCurrency),
		zap.String("ledger_amount", ledgerAmount.String()),
	)
	return w, nil
}

// ledgerCurrency picks the requested currency when the user has earned in it
// and the base currency otherwise.
func (s *Service) ledgerCurrency(ctx context.Context, userID, currency string) (string, error) {
	if currency == s.baseCurrency || s.baseCurrency == "" {
		return currency, nil
	}
	view, err := s.balances.BalanceOfTx(ctx, nil, userID, currency)
	if err != nil {
		return "", err
	}
	if view.HasLedger() {
		return currency, nil
	}
	return s.baseCurrency, nil
}

// quote converts amount into ledger units from one price snapshot. The USD
// value is informational: a same-currency request goes through without a
// price.
func (s *Service) quote(ctx context.Context, amount decimal.Decimal, currency, ledgerCurrency string) (ledgerAmount, rate, usdValue decimal.Decimal, err error) {
	symbols := []string{currency}
	if ledgerCurrency != currency {
		symbols = append(symbols, ledgerCurrency)
	}

	quotes, err := s.prices.Prices(ctx, symbols)
	if ledgerCurrency == currency {
		usdValue = decimal.Zero
		if err != nil {
			zap.L().With(logger.TraceFields(ctx)...).Warn("no usd price for withdrawal", zap.String("currency", currency), zap.Error(err))
		} else {
			usdValue = amount.Mul(quotes[currency].Price)
		}
		return amount, decimal.NewFromInt(1), usdValue, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, errutil.BadRequest(
			fmt.Sprintf("cannot convert %s to %s", currency, ledgerCurrency), err)
	}

	from, to := quotes[currency].Price, quotes[ledgerCurrency].Price
	if !from.IsPositive() || !to.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero, errutil.BadRequest(
			fmt.Sprintf("cannot convert %s to %s", currency, ledgerCurrency), nil)
	}
	rate = from.DivRound(to, ledgerPlaces)
	return debitAmount(amount.Mul(from), to), rate, amount.Mul(from), nil
}

// ledgerPlaces is the scale of ledger amounts.
const ledgerPlaces = 18

var ledgerUnit = decimal.New(1, -ledgerPlaces)

// debitAmount is usd / price rounded up to the ledger scale, so a converted
// request never debits less than it is worth.
func debitAmount(usd, price decimal.Decimal) decimal.Decimal {
	q, r := usd.QuoRem(price, ledgerPlaces)
	if !r.IsZero() {
		q = q.Add(ledgerUnit)
	}
	return q
}

func (s *Service) Get(ctx context.Context, id string) (*Withdrawal, error) {
	if id == "" {
		return nil, errutil.BadRequest("withdrawal id is required", nil)
	}
	w, err := s.withdrawal.FindOne(ctx, &Withdrawal{ID: id})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound("withdrawal not found", nil)
	}
	return w, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Withdrawal, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	return s.withdrawal.Find(ctx, &Withdrawal{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}),
	)
}

// ListByStatus is the admin queue, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Withdrawal, error) {
	if !status.Valid() {
		return nil, errutil.BadRequest(fmt.Sprintf("unknown withdrawal status %q", status), nil)
	}
	return s.withdrawal.Find(ctx, &Withdrawal{Status: status},
		option.WithSortBy(option.QuerySortBy{OrderBy: "ASC"}),
	)
}

// Process moves a pending withdrawal to processing.
func (s *Service) Process(ctx context.Context, id string) (*Withdrawal, error) {
	return s.transition(ctx, id, StatusProcessing, []Status{StatusPending}, map[string]any{
		"status": StatusProcessing,
	})
}

// Complete settles a pending or processing withdrawal. Completing it again
// returns the stored record.
func (s *Service) Complete(ctx context.Context, id string, p CompleteParams) (*Withdrawal, error) {
	if strings.TrimSpace(p.TransactionHash) == "" {
		return nil, errutil.ValidationFailed("transaction_hash is required", nil)
	}
	if p.NetworkFee != nil && p.NetworkFee.IsNegative() {
		return nil, errutil.ValidationFailed("network_fee must not be negative", nil)
	}

	updates := map[string]any{
		"status":           StatusCompleted,
		"transaction_hash": strings.TrimSpace(p.TransactionHash),
		"processed_at":     s.clock.Now().UTC(),
	}
	if p.NetworkFee != nil {
		updates["network_fee"] = *p.NetworkFee
	}
	return s.transition(ctx, id, StatusCompleted, []Status{StatusPending, StatusProcessing}, updates)
}

// Reject cancels a pending or processing withdrawal and releases its
// reservation.
func (s *Service) Reject(ctx context.Context, id, reason string) (*Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.ValidationFailed("reason is required", nil)
	}
	return s.transition(ctx, id, StatusRejected, []Status{StatusPending, StatusProcessing}, map[string]any{
		"status":        StatusRejected,
		"reject_reason": reason,
		"processed_at":  s.clock.Now().UTC(),
	})
}

// transition applies updates only while the row is in one of from. A row
// already in target is returned unchanged.
func (s *Service) transition(ctx context.Context, id string, target Status, from []Status, updates map[string]any) (*Withdrawal, error) {
	res := s.db.WithContext(ctx).Model(&Withdrawal{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to update withdrawal", zap.String("withdrawal_id", id), zap.Error(res.Error))
		return nil, fmt.Errorf("update withdrawal: %w", res.Error)
	}

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		if w.Status == target {
			return w, nil
		}
		return nil, errutil.Conflict(fmt.Sprintf("cannot move withdrawal from %s to %s", w.Status, target), nil)
	}

	transitionsTotal.WithLabelValues(string(target)).Inc()
	s.balances.Invalidate(ctx, w.UserID)

	zap.L().Info("withdrawal status changed",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", w.UserID),
		zap.String("status", string(w.Status)),
	)
	return w, nil
}
