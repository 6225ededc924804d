package balance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Withdrawal statuses as stored in the withdrawals table.
const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusCompleted  = "completed"
)

// CurrencyBalance is the derived balance of one user in one currency. It is
// never persisted.
type CurrencyBalance struct {
	Currency     string          `json:"currency"`
	Earned       decimal.Decimal `json:"earned"`
	EarnedUsd    decimal.Decimal `json:"earned_usd"`
	Withdrawn    decimal.Decimal `json:"withdrawn"`
	WithdrawnUsd decimal.Decimal `json:"withdrawn_usd"`
	// Reserved is held by pending and processing withdrawals.
	Reserved      decimal.Decimal `json:"reserved"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalUsdValue decimal.Decimal `json:"total_usd_value"`
	Available     decimal.Decimal `json:"available"`
}

// HasLedger reports whether the user ever earned in this currency.
func (b CurrencyBalance) HasLedger() bool {
	return b.Earned.IsPositive()
}

// Zero is the view of a currency with no activity.
func Zero(currency string) CurrencyBalance {
	return CurrencyBalance{
		Currency:      strings.ToUpper(currency),
		Earned:        decimal.Zero,
		EarnedUsd:     decimal.Zero,
		Withdrawn:     decimal.Zero,
		WithdrawnUsd:  decimal.Zero,
		Reserved:      decimal.Zero,
		TotalAmount:   decimal.Zero,
		TotalUsdValue: decimal.Zero,
		Available:     decimal.Zero,
	}
}

// row is one line of the aggregate query.
type row struct {
	Currency     string
	Earned       decimal.Decimal
	EarnedUsd    decimal.Decimal
	Withdrawn    decimal.Decimal
	WithdrawnUsd decimal.Decimal
	Reserved     decimal.Decimal
}

func (r row) view() CurrencyBalance {
	total := r.Earned.Sub(r.Withdrawn)
	return CurrencyBalance{
		Currency:      r.Currency,
		Earned:        r.Earned,
		EarnedUsd:     r.EarnedUsd,
		Withdrawn:     r.Withdrawn,
		WithdrawnUsd:  r.WithdrawnUsd,
		Reserved:      r.Reserved,
		TotalAmount:   total,
		TotalUsdValue: r.EarnedUsd.Sub(r.WithdrawnUsd),
		Available:     total.Sub(r.Reserved),
	}
}
