package accrual

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hashmine/services/contract"
	"hashmine/services/ledger"
	"hashmine/services/pricefeed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// errAlreadyCredited rolls back a credit that lost the race for its bucket
// or its watermark.
var errAlreadyCredited = errors.New("already credited")

type ContractStore interface {
	ListActive(ctx context.Context, now time.Time) ([]*contract.Contract, error)
	AdvanceAccrual(ctx context.Context, tx *gorm.DB, c *contract.Contract, at time.Time, amount decimal.Decimal) (bool, error)
}

type LedgerWriter interface {
	Append(ctx context.Context, tx *gorm.DB, p ledger.AppendParams) (*ledger.Entry, bool, error)
}

type PriceProvider interface {
	Price(ctx context.Context, symbol string) (pricefeed.Quote, error)
}

// TickReport summarises one accrual run.
type TickReport struct {
	At       time.Time
	Bucket   int64
	Selected int
	Credited int
	Skipped  int
	Failed   int
	Amount   map[string]decimal.Decimal
}

type Job struct {
	db          *gorm.DB
	contracts   ContractStore
	ledger      LedgerWriter
	prices      PriceProvider
	period      time.Duration
	concurrency int
}

type JobOptions struct {
	Period      time.Duration
	Concurrency int
}

func NewJob(db *gorm.DB, contracts ContractStore, ledger LedgerWriter, prices PriceProvider, opts JobOptions) *Job {
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Job{
		db:          db,
		contracts:   contracts,
		ledger:      ledger,
		prices:      prices,
		period:      opts.Period,
		concurrency: opts.Concurrency,
	}
}

// Run credits every active contract for the time elapsed up to now. One
// contract failing never stops the others; the error is only returned when
// the active set could not be read.
func (j *Job) Run(ctx context.Context, now time.Time) (TickReport, error) {
	now = now.UTC()
	report := TickReport{
		At:     now,
		Bucket: ledger.BucketOf(now, j.period),
		Amount: map[string]decimal.Decimal{},
	}

	active, err := j.contracts.ListActive(ctx, now)
	if err != nil {
		return report, err
	}
	report.Selected = len(active)
	if len(active) == 0 {
		return report, nil
	}

	quotes := j.resolvePrices(ctx, active)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.concurrency)

	for _, c := range active {
		c := c
		g.Go(func() error {
			amount, outcome := j.accrue(ctx, c, now, report.Bucket, quotes[c.Currency])

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCredited:
				report.Credited++
				report.Amount[c.Currency] = report.Amount[c.Currency].Add(amount)
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCredited
	outcomeFailed
)

// resolvePrices fetches one quote per currency for the whole tick.
func (j *Job) resolvePrices(ctx context.Context, active []*contract.Contract) map[string]pricefeed.Quote {
	currencies := map[string]struct{}{}
	for _, c := range active {
		currencies[c.Currency] = struct{}{}
	}
	symbols := make([]string, 0, len(currencies))
	for sym := range currencies {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	quotes := make(map[string]pricefeed.Quote, len(symbols))
	for _, sym := range symbols {
		q, err := j.prices.Price(ctx, sym)
		if err != nil {
			// credits still go through, the USD value is unknown
			zap.L().Warn("no price for accrual currency", zap.String("currency", sym), zap.Error(err))
			q = pricefeed.Quote{Symbol: sym, Price: decimal.Zero, Source: "missing"}
		}
		quotes[sym] = q
	}
	return quotes
}

func (j *Job) accrue(ctx context.Context, c *contract.Contract, now time.Time, bucket int64, quote pricefeed.Quote) (decimal.Decimal, outcome) {
	from := c.AccruedUntil()
	to := now
	if c.EndDate.Before(to) {
		to = c.EndDate
	}

	elapsed := to.Sub(from)
	if elapsed <= 0 {
		return decimal.Zero, outcomeSkipped
	}

	seconds := Seconds(elapsed)
	amount := AccrualIncrement(c.DailyRate, seconds)
	if amount.IsZero() {
		return decimal.Zero, outcomeSkipped
	}

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, inserted, err := j.ledger.Append(ctx, tx, ledger.AppendParams{
			ContractID:     c.ID,
			UserID:         c.UserID,
			Currency:       c.Currency,
			Bucket:         bucket,
			Timestamp:      to,
			Amount:         amount,
			Price:          quote.Price,
			ElapsedSeconds: seconds,
			PriceSource:    string(quote.Source),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyCredited
		}

		advanced, err := j.contracts.AdvanceAccrual(ctx, tx, c, to, amount)
		if err != nil {
			return err
		}
		if !advanced {
			return errAlreadyCredited
		}
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyCredited):
		zap.L().Debug("contract already credited", zap.String("contract_id", c.ID), zap.Int64("bucket", bucket))
		return decimal.Zero, outcomeSkipped
	case err != nil:
		contractFailures.Inc()
		zap.L().Error("failed to accrue contract",
			zap.String("contract_id", c.ID),
			zap.Int64("bucket", bucket),
			zap.Error(err),
		)
		return decimal.Zero, outcomeFailed
	}

	creditsTotal.WithLabelValues(c.Currency).Inc()
	return amount, outcomeCredited
}
