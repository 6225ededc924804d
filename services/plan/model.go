package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is an admin-curated mining offer. Plans are never deleted, only
// deactivated.
type Plan struct {
	ID                 string          `gorm:"column:id;primaryKey" json:"id"`
	Name               string          `gorm:"column:name;uniqueIndex" json:"name"`
	Currency           string          `gorm:"column:currency" json:"currency"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(38,18)" json:"price"`
	DailyRate          decimal.Decimal `gorm:"column:daily_rate;type:numeric(38,18)" json:"daily_rate"`
	ContractPeriodDays int             `gorm:"column:contract_period_days" json:"contract_period_days"`
	IsActive           bool            `gorm:"column:is_active;index" json:"is_active"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Plan) TableName() string { return "mining_plans" }

// Period is the contract duration bought with this plan.
func (p *Plan) Period() time.Duration {
	return time.Duration(p.ContractPeriodDays) * 24 * time.Hour
}

type CreateParams struct {
	Name               string          `json:"name" binding:"required"`
	Currency           string          `json:"currency" binding:"required"`
	Price              decimal.Decimal `json:"price"`
	DailyRate          decimal.Decimal `json:"daily_rate"`
	ContractPeriodDays int             `json:"contract_period_days"`
}
