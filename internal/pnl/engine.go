// Package pnl computes realized and unrealized profit-and-loss for one
// trade by matching exit fills against entry fills FIFO.
//
// Entry lots are consumed oldest-first; an entry's fee is pro-rated by
// the matched fraction of its original quantity, and an exit's fee is
// attributed exactly once per exit regardless of how many lots it
// spans. All arithmetic is decimal; nothing is converted to floating
// point inside the engine.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
)

// Outcome classifies a trade's realized net P&L inside a tolerance band
// so rounding noise never turns a break-even trade into a win or loss.
type Outcome string

const (
	OutcomeWin       Outcome = "Win"
	OutcomeLoss      Outcome = "Loss"
	OutcomeBreakEven Outcome = "Break-even"
)

// Result is the full P&L picture for one trade.
type Result struct {
	RealizedGross decimal.Decimal // matched-lot price P&L before fees
	RealizedNet   decimal.Decimal // RealizedGross minus ClosedFees
	ClosedFees    decimal.Decimal // fees attributable to the closed portion

	ClosedQuantity decimal.Decimal
	OpenQuantity   decimal.Decimal
	AvgOpenPrice   decimal.Decimal // weighted average over remaining lots, zero when flat
	FullyClosed    bool

	// UnrealizedGross is mark-to-market P&L on the open remainder, nil
	// when no mark price is recorded or nothing remains open.
	UnrealizedGross *decimal.Decimal

	// RMultiple is realized net P&L over the recorded initial risk, nil
	// unless the trade is closed with a positive risk amount.
	RMultiple *decimal.Decimal

	Duration   time.Duration
	Outcome    Outcome
	RelevantAt time.Time // close time when closed, open time otherwise
}

// lot is the remaining slice of one entry fill, consumed within a
// single Compute call and never persisted.
type lot struct {
	tx        *domain.Transaction
	remaining decimal.Decimal
}

// Compute runs FIFO matching over the trade's complete fill list. The
// list may arrive in any order. Worst case is O(entries x exits), fine
// at journal-scale fill counts.
func Compute(trade *domain.Trade, fills []*domain.Transaction) (Result, error) {
	res := Result{
		RealizedGross:  decimal.Zero,
		RealizedNet:    decimal.Zero,
		ClosedFees:     decimal.Zero,
		ClosedQuantity: decimal.Zero,
		OpenQuantity:   decimal.Zero,
		AvgOpenPrice:   decimal.Zero,
		RelevantAt:     trade.OpenedAt,
	}
	if len(fills) == 0 {
		res.Outcome = OutcomeBreakEven
		return res, nil
	}

	ordered := make([]*domain.Transaction, len(fills))
	copy(ordered, fills)
	domain.SortForMatching(ordered)

	var lots []*lot
	var exits []*domain.Transaction
	for _, f := range ordered {
		if f.IsEntry(trade.Direction) {
			lots = append(lots, &lot{tx: f, remaining: f.Quantity})
		} else {
			exits = append(exits, f)
		}
	}

	dirSign := decimal.NewFromInt(int64(trade.Direction.Sign()))

	for _, exit := range exits {
		// Exit fee counts once per exit, not once per matched lot.
		res.ClosedFees = res.ClosedFees.Add(exit.Fees)

		remainder := exit.Quantity
		for _, l := range lots {
			if remainder.Sign() <= 0 {
				break
			}
			if l.remaining.Sign() <= 0 {
				continue
			}

			matched := decimal.Min(remainder, l.remaining)
			priceDiff := exit.Price.Sub(l.tx.Price)
			res.RealizedGross = res.RealizedGross.Add(matched.Mul(priceDiff).Mul(dirSign))

			if l.tx.Fees.Sign() > 0 {
				share, err := dmath.Div(matched, l.tx.Quantity)
				if err != nil {
					return Result{}, err
				}
				res.ClosedFees = res.ClosedFees.Add(l.tx.Fees.Mul(share))
			}

			l.remaining = l.remaining.Sub(matched)
			remainder = remainder.Sub(matched)
			res.ClosedQuantity = res.ClosedQuantity.Add(matched)
		}
		// Unconsumed exit remainder means entries were exhausted; nothing
		// more to match for this exit.
	}

	// Open remainder and its weighted-average price.
	weighted := decimal.Zero
	for _, l := range lots {
		if l.remaining.Sign() <= 0 {
			continue
		}
		res.OpenQuantity = res.OpenQuantity.Add(l.remaining)
		weighted = weighted.Add(l.remaining.Mul(l.tx.Price))
	}
	if res.OpenQuantity.Sign() > 0 {
		avg, err := dmath.Div(weighted, res.OpenQuantity)
		if err != nil {
			return Result{}, err
		}
		res.AvgOpenPrice = avg
	}

	res.RealizedNet = res.RealizedGross.Sub(res.ClosedFees)

	if trade.MarkPrice != nil && res.OpenQuantity.Sign() > 0 {
		u := trade.MarkPrice.Sub(res.AvgOpenPrice).Mul(res.OpenQuantity).Mul(dirSign)
		res.UnrealizedGross = &u
	}

	res.FullyClosed = trade.Status == domain.StatusClosed &&
		dmath.IsZeroWithin(res.OpenQuantity, dmath.QuantityTolerance)

	if trade.Status == domain.StatusClosed && trade.InitialRisk != nil && trade.InitialRisk.Sign() > 0 {
		r, err := dmath.Div(res.RealizedGross.Sub(trade.Fees), *trade.InitialRisk)
		if err != nil {
			return Result{}, err
		}
		res.RMultiple = &r
	}

	switch dmath.Sign(res.RealizedNet, dmath.PnlTolerance) {
	case 1:
		res.Outcome = OutcomeWin
	case -1:
		res.Outcome = OutcomeLoss
	default:
		res.Outcome = OutcomeBreakEven
	}

	last := ordered[len(ordered)-1].ExecutedAt
	if trade.Status == domain.StatusClosed && !trade.ClosedAt.IsZero() {
		res.Duration = trade.ClosedAt.Sub(trade.OpenedAt)
		res.RelevantAt = trade.ClosedAt
	} else {
		res.Duration = last.Sub(trade.OpenedAt)
		res.RelevantAt = trade.OpenedAt
	}

	return res, nil
}
