package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one executed fill: a single buy or sell event belonging
// to exactly one trade.
type Transaction struct {
	ID      int64
	TradeID int64
	Ref     string // execution reference; assigned (ULID) when the venue supplies none

	Action     OrderSide
	Quantity   decimal.Decimal // always > 0
	Price      decimal.Decimal // always > 0
	Fees       decimal.Decimal // >= 0
	ExecutedAt time.Time

	// VenuePnL is the realized P&L the venue reported for this fill, kept
	// for audit only. FIFO matching never substitutes it.
	VenuePnL *decimal.Decimal

	Notes string
}

// IsEntry reports whether the fill increases exposure for a trade in the
// given direction (Buy for Long, Sell for Short).
func (tx *Transaction) IsEntry(dir Direction) bool {
	return tx.Action == dir.EntrySide()
}

// SortForMatching orders fills for lot matching: ascending timestamp,
// ties broken by insertion order (id).
func SortForMatching(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].ExecutedAt.Equal(txs[j].ExecutedAt) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].ExecutedAt.Before(txs[j].ExecutedAt)
	})
}
