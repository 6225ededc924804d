package balance

import (
	"context"
	"strconv"
	"testing"
	"time"

	"hashmine/pkg/errutil"
	"hashmine/services/ledger"
	"hashmine/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// withdrawalRow carries only the columns the aggregate reads.
type withdrawalRow struct {
	ID             string          `gorm:"column:id;primaryKey"`
	UserID         string          `gorm:"column:user_id"`
	LedgerCurrency string          `gorm:"column:ledger_currency"`
	LedgerAmount   decimal.Decimal `gorm:"column:ledger_amount;type:numeric(38,18)"`
	UsdValue       decimal.Decimal `gorm:"column:usd_value;type:numeric(38,18)"`
	Status         string          `gorm:"column:status"`
}

func (withdrawalRow) TableName() string { return "withdrawals" }

type memCache struct {
	versions  map[string]int64
	views     map[string][]CurrencyBalance
	gets      int
	beforeSet func()
}

func newMemCache() *memCache {
	return &memCache{versions: map[string]int64{}, views: map[string][]CurrencyBalance{}}
}

func memKey(userID string, version int64) string {
	return userID + ":" + strconv.FormatInt(version, 10)
}

func (m *memCache) Version(_ context.Context, userID string) (int64, error) {
	return m.versions[userID], nil
}

func (m *memCache) Get(_ context.Context, userID string, version int64) ([]CurrencyBalance, bool, error) {
	m.gets++
	v, ok := m.views[memKey(userID, version)]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, userID string, version int64, views []CurrencyBalance) error {
	if m.beforeSet != nil {
		m.beforeSet()
		m.beforeSet = nil
	}
	m.views[memKey(userID, version)] = views
	return nil
}

func (m *memCache) Bump(_ context.Context, userID string) error {
	m.versions[userID]++
	return nil
}

var seq int

func credit(t *testing.T, db *gorm.DB, user, currency, amount, usd string) {
	t.Helper()
	seq++
	require.NoError(t, db.Create(&ledger.Entry{
		ID:         "e-" + strconv.Itoa(seq),
		ContractID: "c-" + user,
		Bucket:     int64(seq),
		UserID:     user,
		Currency:   currency,
		Timestamp:  time.Unix(int64(seq), 0).UTC(),
		Amount:     testutil.D(amount),
		UsdValue:   testutil.D(usd),
		Price:      decimal.Zero,
	}).Error)
}

func withdraw(t *testing.T, db *gorm.DB, user, currency, amount, usd, status string) {
	t.Helper()
	seq++
	require.NoError(t, db.Create(&withdrawalRow{
		ID:             "w-" + strconv.Itoa(seq),
		UserID:         user,
		LedgerCurrency: currency,
		LedgerAmount:   testutil.D(amount),
		UsdValue:       testutil.D(usd),
		Status:         status,
	}).Error)
}

func newService(t *testing.T, cache Cache) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &ledger.Entry{}, &withdrawalRow{})
	return NewService(ServiceParams{DB: db, Cache: cache}), db
}

func TestBalance_LedgerMinusCompletedWithdrawals(t *testing.T) {
	svc, db := newService(t, nil)
	ctx := context.Background()

	credit(t, db, "u-1", "BTC", "0.004", "260")
	credit(t, db, "u-1", "BTC", "0.003", "195")
	credit(t, db, "u-1", "ETH", "0.5", "1500")
	credit(t, db, "u-2", "BTC", "1", "65000")

	withdraw(t, db, "u-1", "BTC", "0.002", "130", "completed")
	withdraw(t, db, "u-1", "BTC", "0.001", "65", "pending")
	withdraw(t, db, "u-1", "BTC", "0.0005", "32.5", "processing")
	withdraw(t, db, "u-1", "BTC", "0.004", "260", "rejected")

	views, err := svc.Balance(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, views, 2)

	btc := views[0]
	require.Equal(t, "BTC", btc.Currency)
	testutil.RequireDecimalNear(t, testutil.D("0.007"), btc.Earned)
	testutil.RequireDecimalNear(t, testutil.D("0.002"), btc.Withdrawn)
	testutil.RequireDecimalNear(t, testutil.D("0.0015"), btc.Reserved)
	testutil.RequireDecimalNear(t, testutil.D("0.005"), btc.TotalAmount)
	testutil.RequireDecimalNear(t, testutil.D("325"), btc.TotalUsdValue)
	testutil.RequireDecimalNear(t, testutil.D("0.0035"), btc.Available)

	eth := views[1]
	require.Equal(t, "ETH", eth.Currency)
	testutil.RequireDecimalNear(t, testutil.D("0.5"), eth.TotalAmount)
	testutil.RequireDecimalNear(t, testutil.D("0.5"), eth.Available)
}

func TestBalance_NoActivityIsZero(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	views, err := svc.Balance(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, views)

	view, err := svc.BalanceOf(ctx, "nobody", "btc")
	require.NoError(t, err)
	require.Equal(t, "BTC", view.Currency)
	require.True(t, view.TotalAmount.IsZero())
	require.True(t, view.Available.IsZero())
	require.False(t, view.HasLedger())
}

func TestBalanceOfTx_FiltersCurrency(t *testing.T) {
	svc, db := newService(t, nil)
	ctx := context.Background()

	credit(t, db, "u-1", "BTC", "0.01", "650")
	credit(t, db, "u-1", "ETH", "2", "6000")
	withdraw(t, db, "u-1", "ETH", "1", "3000", "completed")

	var view CurrencyBalance
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		view, err = svc.BalanceOfTx(ctx, tx, "u-1", "eth")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "ETH", view.Currency)
	require.True(t, view.HasLedger())
	testutil.RequireDecimalNear(t, testutil.D("1"), view.Available)
}

func TestBalance_CacheReadAndInvalidate(t *testing.T) {
	cache := newMemCache()
	svc, db := newService(t, cache)
	ctx := context.Background()

	credit(t, db, "u-1", "BTC", "0.01", "650")

	first, err := svc.BalanceOf(ctx, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.01"), first.TotalAmount)

	credit(t, db, "u-1", "BTC", "0.01", "650")

	cached, err := svc.BalanceOf(ctx, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.01"), cached.TotalAmount)

	// admission reads never go through the cache
	fresh, err := svc.BalanceOfTx(ctx, nil, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.02"), fresh.TotalAmount)

	svc.Invalidate(ctx, "u-1")
	after, err := svc.BalanceOf(ctx, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.02"), after.TotalAmount)
}

func TestBalance_InvalidationDuringReadIsNotLost(t *testing.T) {
	cache := newMemCache()
	svc, db := newService(t, cache)
	ctx := context.Background()

	credit(t, db, "u-1", "BTC", "0.01", "650")

	// the withdrawal completes after the read queried but before it cached
	cache.beforeSet = func() {
		withdraw(t, db, "u-1", "BTC", "0.004", "260", "completed")
		svc.Invalidate(ctx, "u-1")
	}
	stale, err := svc.BalanceOf(ctx, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.01"), stale.TotalAmount)

	next, err := svc.BalanceOf(ctx, "u-1", "BTC")
	require.NoError(t, err)
	testutil.RequireDecimalNear(t, testutil.D("0.006"), next.TotalAmount)
}

func TestBalance_RequiresUser(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.Balance(context.Background(), "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	_, err = svc.BalanceOfTx(context.Background(), nil, "", "BTC")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestWithJitter(t *testing.T) {
	require.Equal(t, time.Second, withJitter(time.Second, 0))
	for i := 0; i < 50; i++ {
		got := withJitter(time.Second, 200*time.Millisecond)
		require.GreaterOrEqual(t, got, time.Second)
		require.Less(t, got, 1200*time.Millisecond)
	}
}
