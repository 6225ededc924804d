package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hashmine/pkg/db/option"
	"hashmine/pkg/db/pagination"
	"hashmine/pkg/errutil"
	"hashmine/pkg/logger"
	"hashmine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger repository.Repository[Entry]
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

		ledger: repository.ProvideStore[Entry](p.DB),
	}
}

// Append inserts a credit unless the (contract, bucket) pair is already
// present. It reports whether a row was written. tx may be nil.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p AppendParams) (*Entry, bool, error) {
	if p.ContractID == "" || p.UserID == "" {
		return nil, false, errutil.BadRequest("contract_id and user_id are required", nil)
	}
	if p.Amount.IsNegative() {
		return nil, false, errutil.ValidationFailed("ledger amount must not be negative", nil)
	}

	meta, err := json.Marshal(map[string]string{"price_source": p.PriceSource})
	if err != nil {
		return nil, false, err
	}

	entry := &Entry{
		ID:             s.node.Generate().String(),
		ContractID:     p.ContractID,
		Bucket:         p.Bucket,
		UserID:         p.UserID,
		Currency:       p.Currency,
		Timestamp:      p.Timestamp.UTC(),
		Amount:         p.Amount,
		UsdValue:       p.Amount.Mul(p.Price).Round(18),
		Price:          p.Price,
		ElapsedSeconds: p.ElapsedSeconds,
		Metadata:       datatypes.JSON(meta),
	}

	db := s.db
	if tx != nil {
		db = tx
	}

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_id"}, {Name: "bucket"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to append ledger entry",
			zap.String("contract_id", p.ContractID),
			zap.Int64("bucket", p.Bucket),
			zap.Error(res.Error),
		)
		return nil, false, fmt.Errorf("append ledger entry: %w", res.Error)
	}

	return entry, res.RowsAffected == 1, nil
}

func (s *Service) ListByContract(ctx context.Context, contractID string) ([]*Entry, error) {
	if contractID == "" {
		return nil, errutil.BadRequest("contract id is required", nil)
	}
	return s.ledger.Find(ctx, &Entry{ContractID: contractID},
		option.WithSortBy(option.QuerySortBy{SortBy: "accrued_at", OrderBy: "ASC"}),
	)
}

// ListByUser pages a user's entries newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, page pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	if userID == "" {
		return nil, nil, errutil.BadRequest("user id is required", nil)
	}
	limit := page.PageLimit()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "accrued_at", OrderBy: "DESC"}),
		option.WithLimit(limit + 1),
	}

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, func(db *gorm.DB) *gorm.DB {
			return db.Where("((accrued_at < ?) OR (accrued_at = ? AND id < ?))", ts.UTC(), ts.UTC(), cursor.ID)
		})
	}

	rows, err := s.ledger.Find(ctx, &Entry{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.BuildCursorPageInfo(rows, limit, func(e *Entry) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{CreatedAt: e.Timestamp.UTC().Format(time.RFC3339Nano), ID: e.ID})
		return c
	})
	return rows, info, nil
}

// SummarizeContract totals the credits of one contract.
func (s *Service) SummarizeContract(ctx context.Context, contractID string) (*Summary, error) {
	var out Summary
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(usd_value), 0) AS usd_value").
		Where("contract_id = ?", contractID).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("summarize contract: %w", err)
	}
	return &out, nil
}
