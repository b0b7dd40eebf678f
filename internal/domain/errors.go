package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError rejects a fill mutation before any state changes. Its
// message is written to be shown to the user verbatim.
type ValidationError struct {
	Msg       string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ValidationError) Error() string { return e.Msg }

// NewOverCloseError reports a close that exceeds what is open.
func NewOverCloseError(what string, requested, available decimal.Decimal) *ValidationError {
	return &ValidationError{
		Msg: fmt.Sprintf("cannot close %s %s: only %s available",
			requested.String(), what, available.String()),
		Requested: requested,
		Available: available,
	}
}

// NewValidationError builds a plain validation error.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IntegrityError signals an internal routing defect, e.g. a fill routed
// to a trade that is no longer open. It should be logged, never shown
// raw to a user.
type IntegrityError struct {
	TradeID int64
	Msg     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on trade %d: %s", e.TradeID, e.Msg)
}
