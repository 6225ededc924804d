package accrual

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hashmine/services/contract"
	"hashmine/services/ledger"
	"hashmine/services/pricefeed"
	"hashmine/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	t0   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rate = decimal.RequireFromString("0.000028")
)

type staticPrices struct {
	prices map[string]decimal.Decimal
}

func (s staticPrices) Price(ctx context.Context, symbol string) (pricefeed.Quote, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return pricefeed.Quote{}, errors.New("no price")
	}
	return pricefeed.Quote{Symbol: symbol, Price: p, Source: pricefeed.SourceLive}, nil
}

type fixture struct {
	db        *gorm.DB
	contracts *contract.Service
	ledger    *ledger.Service
	job       *Job
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &contract.Contract{}, &ledger.Entry{})
	node := testutil.NewNode(t)

	f := &fixture{
		db:        db,
		contracts: contract.NewService(contract.ServiceParams{DB: db, Node: node}),
		ledger:    ledger.NewService(ledger.ServiceParams{DB: db, Node: node}),
	}
	f.job = NewJob(db, f.contracts, f.ledger, staticPrices{prices: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)}},
		JobOptions{Period: time.Second, Concurrency: concurrency})
	return f
}

func (f *fixture) newContract(t *testing.T, user string, start time.Time, days int) *contract.Contract {
	t.Helper()
	c, err := f.contracts.Create(context.Background(), nil, contract.CreateParams{
		UserID:     user,
		PlanID:     "plan-1",
		Currency:   "BTC",
		DailyRate:  rate,
		PeriodDays: days,
		StartDate:  start,
	})
	require.NoError(t, err)
	return c
}

func TestJob_TenOneSecondTicks(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	c := f.newContract(t, "u-1", t0, 30)

	for i := 1; i <= 10; i++ {
		report, err := f.job.Run(ctx, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.Equal(t, 1, report.Credited)
	}

	entries, err := f.ledger.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 10)

	perTick := decimal.RequireFromString("0.000000000324074074")
	sum := decimal.Zero
	for i, e := range entries {
		testutil.RequireDecimalNear(t, perTick, e.Amount)
		require.True(t, e.Timestamp.Equal(t0.Add(time.Duration(i+1)*time.Second)))
		if i > 0 {
			require.True(t, e.Timestamp.After(entries[i-1].Timestamp))
		}
		sum = sum.Add(e.Amount)
	}
	testutil.RequireDecimalNear(t, perTick.Mul(decimal.NewFromInt(10)), sum)

	got, err := f.contracts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.LastAccrualAt.Equal(t0.Add(10*time.Second)))
	testutil.RequireDecimalNear(t, sum, got.TotalEarnings)
}

func TestJob_RerunSameTickDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	c := f.newContract(t, "u-1", t0, 30)
	now := t0.Add(time.Second)

	first, err := f.job.Run(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, first.Credited)

	again, err := f.job.Run(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 0, again.Credited)
	require.Equal(t, 1, again.Skipped)

	// a later instant inside the same bucket is also a duplicate
	sameBucket, err := f.job.Run(ctx, now.Add(400*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 0, sameBucket.Credited)

	entries, err := f.ledger.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestJob_ConcurrentRunsCreditOnce(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.newContract(t, "u-1", t0, 30)
	}
	now := t0.Add(time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		credits int
		errs    []error
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.job.Run(ctx, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			credits += report.Credited
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 5, credits)

	var count int64
	require.NoError(t, f.db.Model(&ledger.Entry{}).Count(&count).Error)
	require.EqualValues(t, 5, count)
}

func TestJob_MissedTicksAreCreditedOnce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	c := f.newContract(t, "u-1", t0, 30)

	_, err := f.job.Run(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	// ticks 2..4 never ran
	_, err = f.job.Run(ctx, t0.Add(5*time.Second))
	require.NoError(t, err)

	entries, err := f.ledger.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	testutil.RequireDecimalNear(t, decimal.NewFromInt(4), entries[1].ElapsedSeconds)

	sum, err := f.ledger.SummarizeContract(ctx, c.ID)
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, AccrualIncrement(rate, decimal.NewFromInt(5)), sum.Amount)
}

func TestJob_InactiveAndEndedContractsStopAccruing(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	cancelled := f.newContract(t, "u-1", t0, 30)
	ending := f.newContract(t, "u-2", t0, 1)

	_, err := f.job.Run(ctx, t0.Add(time.Second))
	require.NoError(t, err)

	_, err = f.contracts.Deactivate(ctx, cancelled.ID)
	require.NoError(t, err)

	report, err := f.job.Run(ctx, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, report.Selected)

	// clamp at the end date
	report, err = f.job.Run(ctx, ending.EndDate)
	require.NoError(t, err)
	require.Equal(t, 1, report.Credited)

	report, err = f.job.Run(ctx, ending.EndDate.Add(time.Second))
	require.NoError(t, err)
	require.Zero(t, report.Selected)

	cancelledEntries, err := f.ledger.ListByContract(ctx, cancelled.ID)
	require.NoError(t, err)
	require.Len(t, cancelledEntries, 1)

	sum, err := f.ledger.SummarizeContract(ctx, ending.ID)
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, rate, sum.Amount)
}

// cancellingStore deactivates every contract right after it was selected.
type cancellingStore struct {
	*contract.Service
}

func (s cancellingStore) ListActive(ctx context.Context, now time.Time) ([]*contract.Contract, error) {
	active, err := s.Service.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, c := range active {
		if _, err := s.Deactivate(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func TestJob_CancelledMidTickIsNotCredited(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	c := f.newContract(t, "u-1", t0, 30)
	f.job.contracts = cancellingStore{Service: f.contracts}

	report, err := f.job.Run(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, report.Selected)
	require.Zero(t, report.Credited)

	entries, err := f.ledger.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	stored, err := f.contracts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.True(t, stored.TotalEarnings.IsZero())
}

func TestJob_MissingPriceStillCredits(t *testing.T) {
	f := newFixture(t, 1)
	f.job.prices = staticPrices{}
	ctx := context.Background()
	c := f.newContract(t, "u-1", t0, 30)

	report, err := f.job.Run(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, report.Credited)

	entries, err := f.ledger.ListByContract(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].UsdValue.IsZero())
}

type failingLedger struct {
	LedgerWriter
	failFor string
}

func (l failingLedger) Append(ctx context.Context, tx *gorm.DB, p ledger.AppendParams) (*ledger.Entry, bool, error) {
	if p.ContractID == l.failFor {
		return nil, false, errors.New("disk full")
	}
	return l.LedgerWriter.Append(ctx, tx, p)
}

func TestJob_FailureIsIsolated(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	bad := f.newContract(t, "u-1", t0, 30)
	f.newContract(t, "u-2", t0, 30)
	f.newContract(t, "u-3", t0, 30)
	f.job.ledger = failingLedger{LedgerWriter: f.ledger, failFor: bad.ID}

	report, err := f.job.Run(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 3, report.Selected)
	require.Equal(t, 2, report.Credited)
	require.Equal(t, 1, report.Failed)

	// the failed contract keeps its watermark and catches up next tick
	f.job.ledger = f.ledger
	report, err = f.job.Run(ctx, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, 3, report.Credited)

	sum, err := f.ledger.SummarizeContract(ctx, bad.ID)
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, AccrualIncrement(rate, decimal.NewFromInt(2)), sum.Amount)
}
