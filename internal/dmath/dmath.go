// Package dmath centralizes the decimal arithmetic policy used by the
// ledger: fixed-precision math on shopspring/decimal, tolerance-based
// comparisons for quantities and P&L, and guarded division.
//
// All money and quantity math in the module goes through decimal.Decimal;
// float64 appears only at presentation boundaries (logging, CLI output).
package dmath

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by Div when the divisor is zero.
// Division by zero is always a hard error, never a silent NaN/Inf.
var ErrDivisionByZero = errors.New("decimal division by zero")

var (
	// QuantityTolerance bounds equality checks on quantities (1e-8).
	QuantityTolerance = decimal.New(1, -8)
	// PnlTolerance bounds the win/loss/break-even classification (1e-6).
	PnlTolerance = decimal.New(1, -6)
)

func init() {
	// Quotients keep at least 20 significant digits before the result
	// boundary; the shopspring default of 16 is too coarse for pro-rated
	// fee attribution on small quantities.
	if decimal.DivisionPrecision < 20 {
		decimal.DivisionPrecision = 20
	}
}

// EqualWithin reports whether a and b differ by no more than tol.
func EqualWithin(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(tol) <= 0
}

// IsZeroWithin reports whether a is zero up to tol.
func IsZeroWithin(a, tol decimal.Decimal) bool {
	return a.Abs().Cmp(tol) <= 0
}

// GreaterThan reports whether a exceeds b by more than tol.
func GreaterThan(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Cmp(tol) > 0
}

// LessThan reports whether a is below b by more than tol.
func LessThan(a, b, tol decimal.Decimal) bool {
	return b.Sub(a).Cmp(tol) > 0
}

// Sign classifies a against the tolerance band: 0 when |a| <= tol,
// otherwise the ordinary sign of a.
func Sign(a, tol decimal.Decimal) int {
	if IsZeroWithin(a, tol) {
		return 0
	}
	return a.Sign()
}

// Div divides a by b, returning ErrDivisionByZero when b is zero.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Div(b), nil
}

// RoundMoney rounds half-up to 8 decimal places, the precision kept on
// persisted monetary fields.
func RoundMoney(a decimal.Decimal) decimal.Decimal {
	return a.Round(8)
}
