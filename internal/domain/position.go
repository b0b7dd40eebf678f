package domain

import "github.com/shopspring/decimal"

// OpenTradeSize is the remaining open quantity of one open trade.
type OpenTradeSize struct {
	TradeID   int64
	Direction Direction
	Size      decimal.Decimal // always > 0
}

// PositionSnapshot is a derived, read-only view of the current exposure
// for one instrument. It is computed on demand from open trades and
// never persisted.
type PositionSnapshot struct {
	Instrument  Instrument
	NetPosition decimal.Decimal // + long exposure, - short exposure
	OpenTrades  []OpenTradeSize
}

// AvailableToClose sums the open sizes of trades in the given direction,
// i.e. the quantity a closing fill on the opposite side may consume.
func (s PositionSnapshot) AvailableToClose(dir Direction) decimal.Decimal {
	total := decimal.Zero
	for _, ot := range s.OpenTrades {
		if ot.Direction == dir {
			total = total.Add(ot.Size)
		}
	}
	return total
}

// IsFlat reports whether there is no open exposure at all.
func (s PositionSnapshot) IsFlat() bool {
	return len(s.OpenTrades) == 0
}
