package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the aggregate root: a directional position reconstructed from
// one or more fills, from first entry to full closure.
//
// Aggregate fields (Status, Fees, OpenedAt, ClosedAt, LatestActivityAt)
// are derived from the full fill history and rewritten by recalculation
// after every fill mutation; they are never updated incrementally.
type Trade struct {
	ID         int64
	Instrument Instrument
	Direction  Direction
	Status     TradeStatus

	OpenedAt         time.Time
	ClosedAt         time.Time // zero while open
	LatestActivityAt time.Time // latest fill across sibling trades (same instrument + direction)

	Fees decimal.Decimal // accumulated over all fills

	// Optional journal fields recorded at entry.
	MarkPrice   *decimal.Decimal // last known market price, for unrealized P&L
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	InitialRisk *decimal.Decimal // planned risk amount, denominator of the R-multiple

	Tags []string
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}
