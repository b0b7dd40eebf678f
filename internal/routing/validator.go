package routing

import (
	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
)

// Validator rejects fills that would close more than is open. It never
// mutates state; every rejection is a *domain.ValidationError carrying
// the exact requested and available quantities.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateFill rejects non-positive quantities and prices.
func (v *Validator) ValidateFill(quantity, price, fees decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return domain.NewValidationError("fill quantity must be positive, got %s", quantity)
	}
	if price.Sign() <= 0 {
		return domain.NewValidationError("fill price must be positive, got %s", price)
	}
	if fees.Sign() < 0 {
		return domain.NewValidationError("fill fees cannot be negative, got %s", fees)
	}
	return nil
}

// ValidateClose checks an ordinary close against the summed open sizes
// of compatible trades, within the quantity tolerance.
func (v *Validator) ValidateClose(requested decimal.Decimal, snap domain.PositionSnapshot, closedDir domain.Direction) error {
	available := snap.AvailableToClose(closedDir)
	if dmath.GreaterThan(requested, available, dmath.QuantityTolerance) {
		return domain.NewOverCloseError(snap.Instrument.Ticker, requested, available)
	}
	return nil
}

// ValidateLiquidation checks a forced close against the absolute net
// position with the same tolerance.
func (v *Validator) ValidateLiquidation(requested decimal.Decimal, snap domain.PositionSnapshot) error {
	available := snap.NetPosition.Abs()
	if dmath.GreaterThan(requested, available, dmath.QuantityTolerance) {
		return domain.NewOverCloseError(snap.Instrument.Ticker, requested, available)
	}
	return nil
}
