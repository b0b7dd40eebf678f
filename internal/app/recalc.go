package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// RecalcOutcome reports what recalculation did to a trade. A missing or
// emptied trade is a legitimate outcome within the same unit of work,
// not an error.
type RecalcOutcome struct {
	TradeDeleted bool
	Trade        *domain.Trade
	TotalEntry   decimal.Decimal
	TotalExit    decimal.Decimal
}

// recalculateTrade rebuilds one trade's aggregate fields from its full,
// freshly reloaded fill list. Never incremental: recomputing from
// scratch after every mutation is what prevents drift.
//
// Status rule: Closed once total exit quantity catches up to total
// entry quantity (and something was entered); a trade left with zero
// fills is deleted, cascading its tags and attachments.
func (s *Service) recalculateTrade(ctx context.Context, store ports.Store, tradeID int64) (RecalcOutcome, error) {
	trade, err := store.FindTradeByID(ctx, tradeID)
	if err != nil {
		return RecalcOutcome{}, err
	}
	if trade == nil {
		// Already gone, e.g. deleted earlier in this unit of work.
		return RecalcOutcome{TradeDeleted: true}, nil
	}

	fills, err := store.FindTransactionsByTradeID(ctx, tradeID)
	if err != nil {
		return RecalcOutcome{}, err
	}
	if len(fills) == 0 {
		if err := store.DeleteTrade(ctx, tradeID); err != nil {
			return RecalcOutcome{}, fmt.Errorf("failed to delete emptied trade %d: %w", tradeID, err)
		}
		s.logger.Info(ctx, "Trade deleted: last fill removed", map[string]interface{}{"tradeID": tradeID})
		return RecalcOutcome{TradeDeleted: true}, nil
	}

	domain.SortForMatching(fills)

	totalEntry := decimal.Zero
	totalExit := decimal.Zero
	fees := decimal.Zero
	for _, f := range fills {
		if f.IsEntry(trade.Direction) {
			totalEntry = totalEntry.Add(f.Quantity)
		} else {
			totalExit = totalExit.Add(f.Quantity)
		}
		fees = fees.Add(f.Fees)
	}

	first := fills[0].ExecutedAt
	latest := fills[len(fills)-1].ExecutedAt

	trade.Fees = fees
	trade.OpenedAt = first
	trade.LatestActivityAt = latest

	closed := totalEntry.Sign() > 0 &&
		!dmath.LessThan(totalExit, totalEntry, dmath.QuantityTolerance)
	if closed {
		trade.Status = domain.StatusClosed
		trade.ClosedAt = latest
	} else {
		trade.Status = domain.StatusOpen
		trade.ClosedAt = time.Time{}
	}

	if err := store.UpdateTrade(ctx, trade); err != nil {
		return RecalcOutcome{}, err
	}
	// Stamp sibling trades (same instrument + direction) with the latest
	// activity across the group, so views sort consistently.
	if err := store.TouchLatestActivity(ctx, trade.Instrument, trade.Direction, latest); err != nil {
		return RecalcOutcome{}, err
	}

	s.logger.Debug(ctx, "Trade recalculated", map[string]interface{}{
		"tradeID":    tradeID,
		"totalEntry": totalEntry.String(),
		"totalExit":  totalExit.String(),
		"status":     string(trade.Status),
	})
	return RecalcOutcome{
		Trade:      trade,
		TotalEntry: totalEntry,
		TotalExit:  totalExit,
	}, nil
}
