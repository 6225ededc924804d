package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Entry is one accrual credit. Entries are append only and unique per
// (contract, bucket).
type Entry struct {
	ID             string          `gorm:"column:id;primaryKey" json:"id"`
	ContractID     string          `gorm:"column:contract_id;uniqueIndex:idx_ledger_contract_bucket,priority:1" json:"contract_id"`
	Bucket         int64           `gorm:"column:bucket;uniqueIndex:idx_ledger_contract_bucket,priority:2" json:"bucket"`
	UserID         string          `gorm:"column:user_id;index:idx_ledger_user_currency,priority:1" json:"user_id"`
	Currency       string          `gorm:"column:currency;index:idx_ledger_user_currency,priority:2" json:"currency"`
	Timestamp      time.Time       `gorm:"column:accrued_at;index" json:"timestamp"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(38,18)" json:"amount"`
	UsdValue       decimal.Decimal `gorm:"column:usd_value;type:numeric(38,18)" json:"usd_value"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(38,18)" json:"price"`
	ElapsedSeconds decimal.Decimal `gorm:"column:elapsed_seconds;type:numeric(20,9)" json:"elapsed_seconds"`
	Metadata       datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Entry) TableName() string { return "earnings_ledger_entries" }

// BucketOf is the idempotency bucket of a credit at t for ticks of period.
func BucketOf(t time.Time, period time.Duration) int64 {
	if period < time.Second {
		period = time.Second
	}
	return t.UTC().Truncate(period).Unix()
}

type AppendParams struct {
	ContractID     string
	UserID         string
	Currency       string
	Bucket         int64
	Timestamp      time.Time
	Amount         decimal.Decimal
	Price          decimal.Decimal
	ElapsedSeconds decimal.Decimal
	PriceSource    string
}

// Summary aggregates a contract's entries.
type Summary struct {
	Count    int64           `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
	UsdValue decimal.Decimal `json:"usd_value"`
}
