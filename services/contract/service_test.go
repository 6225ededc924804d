package contract

import (
	"context"
	"testing"
	"time"

	"hashmine/pkg/errutil"
	"hashmine/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Contract{})
	node := testutil.NewNode(t)

	return NewService(ServiceParams{DB: db, Node: node})
}

func params(user string, start time.Time, days int) CreateParams {
	return CreateParams{
		UserID:     user,
		PlanID:     "plan-1",
		Currency:   "btc",
		DailyRate:  decimal.RequireFromString("0.000028"),
		PeriodDays: days,
		StartDate:  start,
	}
}

func TestService_Create(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p := params("u-1", t0, 30)
	p.DepositID = "dep-1"
	c, err := svc.Create(ctx, nil, p)
	require.NoError(t, err)
	require.Equal(t, "BTC", c.Currency)
	require.True(t, c.EndDate.Equal(t0.AddDate(0, 0, 30)))
	require.True(t, c.LastAccrualAt.Equal(t0))
	require.Equal(t, "dep-1", *c.DepositID)

	_, err = svc.Create(ctx, nil, params("u-1", t0, 0))
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)
	require.True(t, got.StartDate.Equal(t0))
}

func TestService_ListActive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := t0.Add(10 * 24 * time.Hour)

	running, err := svc.Create(ctx, nil, params("u-1", t0, 30))
	require.NoError(t, err)
	_, err = svc.Create(ctx, nil, params("u-1", t0, 5)) // ended
	require.NoError(t, err)
	_, err = svc.Create(ctx, nil, params("u-2", now.Add(time.Hour), 30)) // not started
	require.NoError(t, err)
	cancelled, err := svc.Create(ctx, nil, params("u-2", t0, 30))
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, cancelled.ID)
	require.NoError(t, err)

	active, err := svc.ListActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, running.ID, active[0].ID)

	mine, err := svc.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
}

func TestService_ExpireDue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	short, err := svc.Create(ctx, nil, params("u-1", t0, 1))
	require.NoError(t, err)
	_, err = svc.Create(ctx, nil, params("u-1", t0, 30))
	require.NoError(t, err)

	n, err := svc.ExpireDue(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := svc.Get(ctx, short.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	n, err = svc.ExpireDue(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestService_AdvanceAccrualIsGuarded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, nil, params("u-1", t0, 30))
	require.NoError(t, err)

	amount := decimal.RequireFromString("0.000000000324074074")
	ok, err := svc.AdvanceAccrual(ctx, nil, c, t0.Add(time.Second), amount)
	require.NoError(t, err)
	require.True(t, ok)

	// same snapshot again: someone else already advanced it
	ok, err = svc.AdvanceAccrual(ctx, nil, c, t0.Add(2*time.Second), amount)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.LastAccrualAt.Equal(t0.Add(time.Second)))
	require.EqualValues(t, 1, got.AccrualSeq)
	testutil.RequireDecimalNear(t, amount, got.TotalEarnings)
}

func TestService_AdvanceAccrualStopsAfterDeactivationAndEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	amount := decimal.RequireFromString("0.000000000324074074")

	cancelled, err := svc.Create(ctx, nil, params("u-1", t0, 30))
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, cancelled.ID)
	require.NoError(t, err)

	ok, err := svc.AdvanceAccrual(ctx, nil, cancelled, t0.Add(time.Second), amount)
	require.NoError(t, err)
	require.False(t, ok)

	ended, err := svc.Create(ctx, nil, params("u-2", t0, 1))
	require.NoError(t, err)
	ok, err = svc.AdvanceAccrual(ctx, nil, ended, ended.EndDate.Add(time.Second), amount)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := svc.Get(ctx, ended.ID)
	require.NoError(t, err)
	require.Zero(t, got.AccrualSeq)
	require.True(t, got.TotalEarnings.IsZero())
}

func TestService_DeactivateMissing(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Deactivate(context.Background(), "nope")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestService_EmptyIDsAreRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, nil, params("u-1", t0, 30))
	require.NoError(t, err)

	_, err = svc.Get(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	_, err = svc.ListByUser(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}
