package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract is a user's purchased instance of a plan. DailyRate is the plan
// rate at purchase time and never changes afterwards.
type Contract struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	UserID        string          `gorm:"column:user_id;index" json:"user_id"`
	PlanID        string          `gorm:"column:plan_id;index" json:"plan_id"`
	DepositID     *string         `gorm:"column:deposit_id;uniqueIndex" json:"deposit_id,omitempty"`
	Currency      string          `gorm:"column:currency" json:"currency"`
	DailyRate     decimal.Decimal `gorm:"column:daily_rate;type:numeric(38,18)" json:"daily_rate"`
	StartDate     time.Time       `gorm:"column:start_date" json:"start_date"`
	EndDate       time.Time       `gorm:"column:end_date;index" json:"end_date"`
	LastAccrualAt time.Time       `gorm:"column:last_accrual_at" json:"last_accrual_at"`
	AccrualSeq    int64           `gorm:"column:accrual_seq" json:"-"`
	IsActive      bool            `gorm:"column:is_active;index" json:"is_active"`
	TotalEarnings decimal.Decimal `gorm:"column:total_earnings;type:numeric(38,18)" json:"total_earnings"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Contract) TableName() string { return "mining_contracts" }

// AccruedUntil is the instant earnings have been credited up to.
func (c *Contract) AccruedUntil() time.Time {
	if c.LastAccrualAt.Before(c.StartDate) {
		return c.StartDate
	}
	return c.LastAccrualAt
}

type CreateParams struct {
	UserID     string
	PlanID     string
	DepositID  string
	Currency   string
	DailyRate  decimal.Decimal
	PeriodDays int
	StartDate  time.Time
}
