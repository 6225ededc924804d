package deposit

import (
	"context"
	"testing"
	"time"

	"hashmine/pkg/errutil"
	"hashmine/pkg/sequence"
	"hashmine/services/contract"
	"hashmine/services/plan"
	"hashmine/services/pricefeed"
	"hashmine/services/testutil"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc       *Service
	plans     *plan.Service
	contracts *contract.Service
	clock     *clock.Mock
	plan      *plan.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &plan.Plan{}, &contract.Contract{}, &Deposit{})
	node := testutil.NewNode(t)

	plans := plan.NewService(plan.ServiceParams{DB: db, Node: node})
	contracts := contract.NewService(contract.ServiceParams{DB: db, Node: node})
	feed := pricefeed.New(pricefeed.Options{Fallback: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
	}})

	mock := clock.NewMock()
	mock.Add(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC).Sub(mock.Now()))

	starter, err := plans.Create(context.Background(), plan.CreateParams{
		Name:               "Starter",
		Currency:           "BTC",
		Price:              decimal.NewFromInt(100),
		DailyRate:          testutil.D("0.000028"),
		ContractPeriodDays: 30,
	})
	require.NoError(t, err)

	return &fixture{
		svc: NewService(ServiceParams{
			DB:        db,
			Node:      node,
			Plans:     plans,
			Contracts: contracts,
			Prices:    feed,
			Codes:     sequence.NewMemoryGenerator(),
			Clock:     mock,
		}),
		plans:     plans,
		contracts: contracts,
		clock:     mock,
		plan:      starter,
	}
}

func (f *fixture) submit(t *testing.T, user, amount, currency, hash string) *Deposit {
	t.Helper()
	d, err := f.svc.Submit(context.Background(), SubmitParams{
		UserID:          user,
		PlanID:          f.plan.ID,
		Amount:          testutil.D(amount),
		Currency:        currency,
		TransactionHash: hash,
	})
	require.NoError(t, err)
	return d
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.submit(t, "u-1", "100", "usdt", "0xaaa")
	require.Equal(t, StatusPending, d.Status)
	require.Equal(t, "USDT", d.Currency)
	require.Regexp(t, `^DP-\d{6}-`, d.Reference)

	// 100 USD at 50000 is 0.002 BTC
	f.submit(t, "u-1", "0.002", "BTC", "0xbbb")

	_, err := f.svc.Submit(ctx, SubmitParams{UserID: "u-1", PlanID: f.plan.ID, Amount: testutil.D("0.0019"), Currency: "BTC", TransactionHash: "0xccc"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.svc.Submit(ctx, SubmitParams{UserID: "u-2", PlanID: f.plan.ID, Amount: testutil.D("100"), Currency: "USDT", TransactionHash: "0xaaa"})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = f.svc.Submit(ctx, SubmitParams{UserID: "u-1", PlanID: "missing", Amount: testutil.D("100"), Currency: "USDT", TransactionHash: "0xddd"})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, err = f.plans.SetActive(ctx, f.plan.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitParams{UserID: "u-1", PlanID: f.plan.ID, Amount: testutil.D("100"), Currency: "USDT", TransactionHash: "0xeee"})
	require.True(t, errutil.Is(err, errutil.StatusUnprocessableEntity))

	_, err = f.svc.Submit(ctx, SubmitParams{UserID: "u-1"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
	require.Len(t, errutil.From(err).Details, 4)
}

func TestApprove_CreatesContractOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.submit(t, "u-1", "100", "USDT", "0xaaa")

	for i := 0; i < 2; i++ {
		approved, err := f.svc.Approve(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, StatusApproved, approved.Status)
		require.NotNil(t, approved.ContractID)
		require.NotNil(t, approved.ReviewedAt)
	}

	contracts, err := f.contracts.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, contracts, 1)

	c := contracts[0]
	require.Equal(t, f.plan.ID, c.PlanID)
	require.Equal(t, "BTC", c.Currency)
	require.NotNil(t, c.DepositID)
	require.Equal(t, d.ID, *c.DepositID)
	require.True(t, c.StartDate.Equal(f.clock.Now().UTC()))
	require.True(t, c.EndDate.Equal(f.clock.Now().UTC().Add(30*24*time.Hour)))
	testutil.RequireDecimalNear(t, testutil.D("0.000028"), c.DailyRate)

	_, err = f.svc.Reject(ctx, d.ID, "duplicate")
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.submit(t, "u-1", "100", "USDT", "0xaaa")

	rejected, err := f.svc.Reject(ctx, d.ID, "hash not found on chain")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "hash not found on chain", *rejected.RejectReason)

	_, err = f.svc.Approve(ctx, d.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	contracts, err := f.contracts.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, contracts)

	_, err = f.svc.Approve(ctx, "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.submit(t, "u-1", "100", "USDT", "0x1")
	f.clock.Add(time.Minute)
	second := f.submit(t, "u-2", "100", "USDT", "0x2")
	_, err := f.svc.Approve(ctx, first.ID)
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	mine, err := f.svc.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, StatusApproved, mine[0].Status)
}

func TestEmptyIDsAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "u-1", "100", "USDT", "0xaaa")

	_, err := f.svc.Get(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	_, err = f.svc.Approve(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	_, err = f.svc.ListByUser(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, StatusPending, pending[0].Status)
}
