package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Withdrawal is a payout request. LedgerAmount is what it debits from the
// LedgerCurrency balance; it is fixed at admission.
type Withdrawal struct {
	ID              string           `gorm:"column:id;primaryKey" json:"id"`
	Reference       string           `gorm:"column:reference;uniqueIndex" json:"reference"`
	UserID          string           `gorm:"column:user_id;index:idx_withdrawal_user_status,priority:1" json:"user_id"`
	Amount          decimal.Decimal  `gorm:"column:amount;type:numeric(38,18)" json:"amount"`
	Currency        string           `gorm:"column:currency" json:"currency"`
	LedgerCurrency  string           `gorm:"column:ledger_currency" json:"ledger_currency"`
	LedgerAmount    decimal.Decimal  `gorm:"column:ledger_amount;type:numeric(38,18)" json:"ledger_amount"`
	ExchangeRate    decimal.Decimal  `gorm:"column:exchange_rate;type:numeric(38,18)" json:"exchange_rate"`
	UsdValue        decimal.Decimal  `gorm:"column:usd_value;type:numeric(38,18)" json:"usd_value"`
	WalletAddress   string           `gorm:"column:wallet_address" json:"wallet_address"`
	Status          Status           `gorm:"column:status;index:idx_withdrawal_user_status,priority:2;index:idx_withdrawal_status" json:"status"`
	TransactionHash *string          `gorm:"column:transaction_hash" json:"transaction_hash,omitempty"`
	NetworkFee      *decimal.Decimal `gorm:"column:network_fee;type:numeric(38,18)" json:"network_fee,omitempty"`
	RejectReason    *string          `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	ProcessedAt     *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

type RequestParams struct {
	UserID        string          `json:"-"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}

type CompleteParams struct {
	TransactionHash string           `json:"transaction_hash" binding:"required"`
	NetworkFee      *decimal.Decimal `json:"network_fee"`
}
