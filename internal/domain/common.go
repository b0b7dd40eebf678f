package domain

import "fmt"

// OrderSide represents the side of an executed fill (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Direction is the directional exposure of a trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for Long and -1 for Short, the multiplier applied to
// price differences when computing P&L.
func (d Direction) Sign() int {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// EntrySide returns the order side that increases exposure for the
// direction: Buy for Long, Sell for Short.
func (d Direction) EntrySide() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// DirectionForEntry maps an opening order side to the trade direction it
// establishes.
func DirectionForEntry(side OrderSide) Direction {
	if side == Sell {
		return Short
	}
	return Long
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// Instrument identifies what was traded and where. Position state and
// routing are always scoped to this tuple.
type Instrument struct {
	Ticker     string
	AssetClass string
	Exchange   string
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s/%s@%s", i.Ticker, i.AssetClass, i.Exchange)
}
