package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of decimal places kept on credited amounts.
const AmountPrecision = 18

var secondsPerDay = decimal.NewFromInt(86400)

// AccrualIncrement is the earnings for elapsedSeconds at dailyRate units per
// 24h, rounded half-even to AmountPrecision places. Non-positive inputs earn
// nothing.
func AccrualIncrement(dailyRate, elapsedSeconds decimal.Decimal) decimal.Decimal {
	if !dailyRate.IsPositive() || !elapsedSeconds.IsPositive() {
		return decimal.Zero
	}
	return dailyRate.Mul(elapsedSeconds).DivRound(secondsPerDay, AmountPrecision+12).RoundBank(AmountPrecision)
}

// Seconds converts d into a decimal number of seconds with nanosecond
// precision.
func Seconds(d time.Duration) decimal.Decimal {
	return decimal.New(d.Nanoseconds(), -9)
}
