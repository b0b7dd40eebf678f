// Package position derives the current net exposure for an instrument
// from persisted fills. It is a pure read path: no locking, no side
// effects, always computed from a just-committed snapshot.
package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// Reader computes position snapshots from open-status trades.
type Reader struct {
	logger ports.Logger
}

// NewReader creates a position reader.
func NewReader(logger ports.Logger) (*Reader, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for position reader")
	}
	return &Reader{logger: logger}, nil
}

// Snapshot derives {netPosition, openTrades} for the instrument from the
// given store. The store is passed per call so the reader observes the
// enclosing unit of work when invoked mid-mutation.
func (r *Reader) Snapshot(ctx context.Context, store ports.Store, instr domain.Instrument) (domain.PositionSnapshot, error) {
	snap := domain.PositionSnapshot{Instrument: instr, NetPosition: decimal.Zero}

	trades, err := store.FindOpenTradesByInstrument(ctx, instr)
	if err != nil {
		return snap, fmt.Errorf("failed to load open trades for %s: %w", instr, err)
	}

	for _, trade := range trades {
		fills, err := store.FindTransactionsByTradeID(ctx, trade.ID)
		if err != nil {
			return snap, fmt.Errorf("failed to load fills for trade %d: %w", trade.ID, err)
		}

		size := OpenSize(trade.Direction, fills)
		if dmath.Sign(size, dmath.QuantityTolerance) <= 0 {
			// Fully consumed (or momentarily inconsistent import data);
			// contributes nothing to the snapshot.
			continue
		}

		snap.OpenTrades = append(snap.OpenTrades, domain.OpenTradeSize{
			TradeID:   trade.ID,
			Direction: trade.Direction,
			Size:      size,
		})
		signed := size
		if trade.Direction == domain.Short {
			signed = size.Neg()
		}
		snap.NetPosition = snap.NetPosition.Add(signed)
	}

	r.logger.Debug(ctx, "Position snapshot computed", map[string]interface{}{
		"instrument":  instr.String(),
		"netPosition": snap.NetPosition.String(),
		"openTrades":  len(snap.OpenTrades),
	})
	return snap, nil
}

// OpenSize returns a trade's remaining open quantity: entry quantity
// minus exit quantity, direction-aware. Tolerates an empty fill list.
func OpenSize(dir domain.Direction, fills []*domain.Transaction) decimal.Decimal {
	size := decimal.Zero
	for _, f := range fills {
		if f.IsEntry(dir) {
			size = size.Add(f.Quantity)
		} else {
			size = size.Sub(f.Quantity)
		}
	}
	return size
}
