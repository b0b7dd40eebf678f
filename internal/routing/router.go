// Package routing decides where a fill belongs: open a new trade,
// attach to an existing one, or reverse the position. It also hosts the
// validator that rejects fills which would close more than is open.
package routing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
	"tradeledger/internal/intent"
	"tradeledger/internal/ports"
)

// Mode selects the routing policy.
type Mode int

const (
	// Interactive applies the strict precedence rules for manual entry.
	Interactive Mode = iota
	// Import trusts source labels for bulk historical loads: closes go to
	// the FIFO-oldest trade, same-direction opens to the most recent, and
	// over-close validation is skipped.
	Import
)

// Request carries everything the router needs to place one fill.
type Request struct {
	Instrument domain.Instrument
	Action     domain.OrderSide // side from the caller, may be empty when the label must resolve it
	Quantity   decimal.Decimal
	Intent     intent.Intent
	Snapshot   domain.PositionSnapshot
}

// Decision is the routing outcome. Reason is a human-readable audit
// string recorded with the fill.
type Decision struct {
	OpensNew      bool
	TradeID       int64            // target trade when attaching
	Direction     domain.Direction // direction of the trade the fill belongs to
	Action        domain.OrderSide // resolved fill side
	IsClose       bool             // fill reduces the target trade
	IsLiquidation bool
	Reason        string
}

// Router places fills onto trades.
type Router struct {
	logger ports.Logger
}

// NewRouter creates a router.
func NewRouter(logger ports.Logger) (*Router, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for router")
	}
	return &Router{logger: logger}, nil
}

// Decide routes one fill. It never mutates state; a returned
// *domain.ValidationError means the fill cannot be placed at all.
func (r *Router) Decide(ctx context.Context, mode Mode, req Request) (Decision, error) {
	action, err := resolveAction(req)
	if err != nil {
		return Decision{}, err
	}

	var d Decision
	if mode == Import {
		d, err = r.decideImport(req, action)
	} else {
		d, err = r.decideInteractive(req, action)
	}
	if err != nil {
		return Decision{}, err
	}

	r.logger.Debug(ctx, "Fill routed", map[string]interface{}{
		"instrument": req.Instrument.String(),
		"action":     string(d.Action),
		"opensNew":   d.OpensNew,
		"tradeID":    d.TradeID,
		"reason":     d.Reason,
	})
	return d, nil
}

// resolveAction determines the fill side from the explicit input or the
// parsed label. Liquidations may legitimately leave it empty; the sign
// of the net position resolves them in decideInteractive.
func resolveAction(req Request) (domain.OrderSide, error) {
	if req.Action != "" {
		return req.Action, nil
	}
	if req.Intent.Action != "" {
		return req.Intent.Action, nil
	}
	if req.Intent.IsLiquidation {
		return "", nil
	}
	return "", domain.NewValidationError(
		"cannot determine buy/sell side from order type %q; specify an action", req.Intent.Kind)
}

func (r *Router) decideInteractive(req Request, action domain.OrderSide) (Decision, error) {
	it := req.Intent
	snap := req.Snapshot

	// 1. Nothing open for the instrument: every fill opens a new trade.
	if snap.IsFlat() {
		if it.IsLiquidation {
			return Decision{}, domain.NewValidationError(
				"liquidation of %s rejected: no open position", req.Instrument.Ticker)
		}
		dir := directionFor(it, action)
		return Decision{
			OpensNew:  true,
			Direction: dir,
			Action:    action,
			Reason:    fmt.Sprintf("no open trades for %s; opening new %s trade", req.Instrument.Ticker, dir),
		}, nil
	}

	// 2. Explicitly marked opening.
	if it.Opening != nil && *it.Opening && !it.IsLiquidation {
		dir := directionFor(it, action)
		return Decision{
			OpensNew:  true,
			Direction: dir,
			Action:    action,
			Reason:    fmt.Sprintf("order type %q explicitly opens a new %s trade", it.Kind, dir),
		}, nil
	}

	// 3. Liquidation with unresolved side: the sign of the net position
	// tells us what is being force-closed.
	if it.IsLiquidation {
		if action == "" {
			switch dmath.Sign(snap.NetPosition, dmath.QuantityTolerance) {
			case 1:
				action = domain.Sell
			case -1:
				action = domain.Buy
			default:
				return Decision{}, domain.NewValidationError(
					"liquidation of %s rejected: net position is flat", req.Instrument.Ticker)
			}
		}
		return r.routeClose(req, action, domain.Direction(""), true)
	}

	// 4. Closing-type fill: explicit close label, or a bare side opposite
	// to existing exposure.
	closedDir := domain.DirectionForEntry(action).Opposite()
	explicitClose := it.Opening != nil && !*it.Opening
	if explicitClose || (it.Direction == nil && hasOpenIn(snap, closedDir)) {
		return r.routeClose(req, action, closedDir, false)
	}

	// 5. Reversal: the label names a direction opposite to the current
	// net exposure, so the trader is flipping, not scaling out. Uses the
	// shared tolerance comparator, not raw float sign.
	if it.Direction != nil {
		netSign := dmath.Sign(snap.NetPosition, dmath.QuantityTolerance)
		wantSign := it.Direction.Sign()
		if netSign != 0 && netSign != wantSign {
			return Decision{
				OpensNew:  true,
				Direction: *it.Direction,
				Action:    action,
				Reason: fmt.Sprintf("fill reverses %s position (net %s); opening new %s trade",
					req.Instrument.Ticker, snap.NetPosition, *it.Direction),
			}, nil
		}
	}

	// 6. Scale into an existing compatible-direction trade, else open.
	dir := directionFor(it, action)
	if target := mostRecentOpen(snap, dir); target != nil {
		return Decision{
			TradeID:   target.TradeID,
			Direction: dir,
			Action:    action,
			Reason:    fmt.Sprintf("adding to open %s trade %d", dir, target.TradeID),
		}, nil
	}
	return Decision{
		OpensNew:  true,
		Direction: dir,
		Action:    action,
		Reason:    fmt.Sprintf("no compatible %s trade open; opening new trade", dir),
	}, nil
}

// routeClose picks the target for a closing fill: prefer the open trade
// whose size exactly covers the quantity, otherwise the largest, to
// minimize fragmentation from partial closes.
func (r *Router) routeClose(req Request, action domain.OrderSide, closedDir domain.Direction, liq bool) (Decision, error) {
	if closedDir == "" {
		closedDir = domain.DirectionForEntry(action).Opposite()
	}

	var exactCover, largest *domain.OpenTradeSize
	for i := range req.Snapshot.OpenTrades {
		ot := &req.Snapshot.OpenTrades[i]
		if ot.Direction != closedDir {
			continue
		}
		if dmath.EqualWithin(ot.Size, req.Quantity, dmath.QuantityTolerance) && exactCover == nil {
			exactCover = ot
		}
		if largest == nil || ot.Size.Cmp(largest.Size) > 0 {
			largest = ot
		}
	}

	target := exactCover
	why := "exactly covers quantity"
	if target == nil {
		target = largest
		why = "largest remaining size"
	}
	if target == nil {
		return Decision{}, domain.NewOverCloseError(req.Instrument.Ticker, req.Quantity, decimal.Zero)
	}

	verb := "closing"
	if liq {
		verb = "liquidating"
	}
	return Decision{
		TradeID:       target.TradeID,
		Direction:     closedDir,
		Action:        action,
		IsClose:       true,
		IsLiquidation: liq,
		Reason:        fmt.Sprintf("%s %s trade %d (%s)", verb, closedDir, target.TradeID, why),
	}, nil
}

func (r *Router) decideImport(req Request, action domain.OrderSide) (Decision, error) {
	if action == "" {
		// Imported liquidation with no stated side: fall back to the
		// interactive inference against the snapshot.
		switch dmath.Sign(req.Snapshot.NetPosition, dmath.QuantityTolerance) {
		case -1:
			action = domain.Buy
		default:
			action = domain.Sell
		}
	}

	it := req.Intent
	closedDir := domain.DirectionForEntry(action).Opposite()
	closing := it.IsLiquidation || (it.Opening != nil && !*it.Opening) ||
		(it.Opening == nil && hasOpenIn(req.Snapshot, closedDir))

	if closing {
		// FIFO: imported closes consume the oldest open trade first.
		if target := oldestOpen(req.Snapshot, closedDir); target != nil {
			return Decision{
				TradeID:       target.TradeID,
				Direction:     closedDir,
				Action:        action,
				IsClose:       true,
				IsLiquidation: it.IsLiquidation,
				Reason:        fmt.Sprintf("import: closing oldest %s trade %d", closedDir, target.TradeID),
			}, nil
		}
		// Orphan close in the source history; keep the row anyway.
		dir := domain.DirectionForEntry(action)
		return Decision{
			OpensNew:  true,
			Direction: dir,
			Action:    action,
			Reason:    fmt.Sprintf("import: close with no matching %s trade; recording as new %s trade", closedDir, dir),
		}, nil
	}

	dir := directionFor(it, action)
	if target := mostRecentOpen(req.Snapshot, dir); target != nil {
		return Decision{
			TradeID:   target.TradeID,
			Direction: dir,
			Action:    action,
			Reason:    fmt.Sprintf("import: adding to most recent %s trade %d", dir, target.TradeID),
		}, nil
	}
	return Decision{
		OpensNew:  true,
		Direction: dir,
		Action:    action,
		Reason:    fmt.Sprintf("import: opening new %s trade", dir),
	}, nil
}

func directionFor(it intent.Intent, action domain.OrderSide) domain.Direction {
	if it.Direction != nil {
		return *it.Direction
	}
	return domain.DirectionForEntry(action)
}

func hasOpenIn(snap domain.PositionSnapshot, dir domain.Direction) bool {
	for _, ot := range snap.OpenTrades {
		if ot.Direction == dir {
			return true
		}
	}
	return false
}

// mostRecentOpen returns the open trade with the highest id for the
// direction. Snapshot entries are built in open-time order, so the last
// compatible entry is the most recent.
func mostRecentOpen(snap domain.PositionSnapshot, dir domain.Direction) *domain.OpenTradeSize {
	for i := len(snap.OpenTrades) - 1; i >= 0; i-- {
		if snap.OpenTrades[i].Direction == dir {
			return &snap.OpenTrades[i]
		}
	}
	return nil
}

func oldestOpen(snap domain.PositionSnapshot, dir domain.Direction) *domain.OpenTradeSize {
	for i := range snap.OpenTrades {
		if snap.OpenTrades[i].Direction == dir {
			return &snap.OpenTrades[i]
		}
	}
	return nil
}
