package deposit

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Deposit is a user's payment for a plan, waiting for admin review.
type Deposit struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	Reference       string          `gorm:"column:reference;uniqueIndex" json:"reference"`
	UserID          string          `gorm:"column:user_id;index" json:"user_id"`
	PlanID          string          `gorm:"column:plan_id" json:"plan_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(38,18)" json:"amount"`
	Currency        string          `gorm:"column:currency" json:"currency"`
	TransactionHash string          `gorm:"column:transaction_hash;uniqueIndex" json:"transaction_hash"`
	Status          Status          `gorm:"column:status;index" json:"status"`
	ContractID      *string         `gorm:"column:contract_id" json:"contract_id,omitempty"`
	ReviewedAt      *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	RejectReason    *string         `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Deposit) TableName() string { return "deposits" }

type SubmitParams struct {
	UserID          string          `json:"-"`
	PlanID          string          `json:"plan_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" binding:"required"`
	TransactionHash string          `json:"transaction_hash" binding:"required"`
}
