package testutil

import (
	"testing"

	"github.com/shopspring/decimal"
)

// sqlite hands NUMERIC columns back as REAL, so stored amounts are compared
// with a relative tolerance.
var relTolerance = decimal.New(1, -9)
var absTolerance = decimal.New(1, -18)

// RequireDecimalNear fails the test when got is not within tolerance of want.
func RequireDecimalNear(t *testing.T, want, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()

	tol := want.Abs().Mul(relTolerance)
	if tol.LessThan(absTolerance) {
		tol = absTolerance
	}
	if diff := want.Sub(got).Abs(); diff.GreaterThan(tol) {
		t.Fatalf("decimal mismatch: want %s got %s (diff %s) %v", want, got, diff, msgAndArgs)
	}
}

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
