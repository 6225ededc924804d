package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"hashmine/pkg/db/pagination"
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

	db := testutil.NewTestDB(t, &Entry{})
	node := testutil.NewNode(t)

	return NewService(ServiceParams{DB: db, Node: node})
}

func credit(contractID string, at time.Time) AppendParams {
	return AppendParams{
		ContractID:     contractID,
		UserID:         "u-1",
		Currency:       "BTC",
		Bucket:         BucketOf(at, time.Second),
		Timestamp:      at,
		Amount:         decimal.RequireFromString("0.000000000324074074"),
		Price:          decimal.NewFromInt(65000),
		ElapsedSeconds: decimal.NewFromInt(1),
		PriceSource:    "live",
	}
}

func TestBucketOf(t *testing.T) {
	at := t0.Add(1500 * time.Millisecond)
	require.Equal(t, t0.Unix()+1, BucketOf(at, time.Second))
	require.Equal(t, t0.Unix(), BucketOf(at, time.Minute))
	require.Equal(t, t0.Unix()+1, BucketOf(at, 0))
}

func TestService_AppendIsIdempotentPerBucket(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entry, inserted, err := svc.Append(ctx, nil, credit("c-1", t0.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, inserted)
	testutil.RequireDecimalNear(t, decimal.RequireFromString("0.00002106481481"), entry.UsdValue)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	require.Equal(t, "live", meta["price_source"])

	_, inserted, err = svc.Append(ctx, nil, credit("c-1", t0.Add(time.Second)))
	require.NoError(t, err)
	require.False(t, inserted)

	_, inserted, err = svc.Append(ctx, nil, credit("c-2", t0.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, inserted)

	entries, err := svc.ListByContract(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestService_AppendValidation(t *testing.T) {
	svc := newTestService(t)

	p := credit("", t0)
	_, _, err := svc.Append(context.Background(), nil, p)
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	p = credit("c-1", t0)
	p.Amount = decimal.NewFromInt(-1)
	_, _, err = svc.Append(context.Background(), nil, p)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestService_ListByUserPages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, _, err := svc.Append(ctx, nil, credit("c-1", t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	first, info, err := svc.ListByUser(ctx, "u-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, info.HasMore)
	require.True(t, first[0].Timestamp.Equal(t0.Add(5*time.Second)))

	var seen []time.Time
	for _, e := range first {
		seen = append(seen, e.Timestamp)
	}

	cursor := info.NextCursor
	for cursor != "" {
		page, next, err := svc.ListByUser(ctx, "u-1", pagination.Pagination{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, e := range page {
			seen = append(seen, e.Timestamp)
		}
		cursor = next.NextCursor
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		require.True(t, seen[i].Before(seen[i-1]))
	}

	_, _, err = svc.ListByUser(ctx, "u-1", pagination.Pagination{Cursor: "not-a-cursor"})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestService_SummarizeContract(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	empty, err := svc.SummarizeContract(ctx, "c-1")
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.True(t, empty.Amount.IsZero())

	for i := 1; i <= 3; i++ {
		_, _, err := svc.Append(ctx, nil, credit("c-1", t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	sum, err := svc.SummarizeContract(ctx, "c-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, sum.Count)
	testutil.RequireDecimalNear(t, decimal.RequireFromString("0.000000000972222222"), sum.Amount)
}

func TestService_EmptyIDsAreRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Append(ctx, nil, credit("c-1", t0.Add(time.Second)))
	require.NoError(t, err)

	_, err = svc.ListByContract(ctx, "")
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	_, _, err = svc.ListByUser(ctx, "", pagination.Pagination{})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}
