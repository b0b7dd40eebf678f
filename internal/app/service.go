// Package app composes the ledger core: every fill mutation runs as
// normalize -> read position -> route -> validate -> persist ->
// recalculate, inside one atomic unit of work on the persistence port.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/dmath"
	"tradeledger/internal/domain"
	"tradeledger/internal/id"
	"tradeledger/internal/intent"
	"tradeledger/internal/pnl"
	"tradeledger/internal/ports"
	"tradeledger/internal/position"
	"tradeledger/internal/routing"
)

// Service orchestrates fill mutations and P&L reads over the
// persistence port. It performs no background work; all computation is
// synchronous and scoped to the calling unit of work.
type Service struct {
	logger    ports.Logger
	store     ports.Store
	prices    ports.MarkPriceSource // optional; nil disables mark price refresh
	reader    *position.Reader
	router    *routing.Router
	validator *routing.Validator
}

// NewService creates the application service.
func NewService(logger ports.Logger, store ports.Store, prices ports.MarkPriceSource) (*Service, error) {
	if logger == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger service")
	}
	reader, err := position.NewReader(logger)
	if err != nil {
		return nil, err
	}
	router, err := routing.NewRouter(logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		logger:    logger,
		store:     store,
		prices:    prices,
		reader:    reader,
		router:    router,
		validator: routing.NewValidator(),
	}, nil
}

// FillInput is one fill to record.
type FillInput struct {
	Instrument domain.Instrument
	// Action is the explicit side; may be empty when Label resolves it.
	Action domain.OrderSide
	// Label is the raw order/action text from the venue or the user.
	Label      string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fees       decimal.Decimal
	ExecutedAt time.Time
	// Ref is the venue execution reference; a ULID is assigned when empty.
	Ref      string
	VenuePnL *decimal.Decimal
	Notes    string

	// Journal fields applied when this fill opens a new trade.
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	InitialRisk *decimal.Decimal
}

// RecordResult reports where a recorded fill ended up.
type RecordResult struct {
	TradeID       int64
	TransactionID int64
	RoutingReason string
}

// RecordFill routes, validates and persists one manually entered fill.
// The whole sequence commits atomically or not at all.
func (s *Service) RecordFill(ctx context.Context, in FillInput) (RecordResult, error) {
	op := "RecordFill"
	if err := s.validator.ValidateFill(in.Quantity, in.Price, in.Fees); err != nil {
		return RecordResult{}, err
	}
	it := intent.Parse(in.Label)

	var res RecordResult
	err := s.store.RunInTransaction(ctx, func(store ports.Store) error {
		var err error
		res, err = s.placeFill(ctx, store, routing.Interactive, in, it)
		return err
	})
	if err != nil {
		return RecordResult{}, err
	}
	s.logger.Info(ctx, op+": fill recorded", map[string]interface{}{
		"tradeID":       res.TradeID,
		"transactionID": res.TransactionID,
		"reason":        res.RoutingReason,
	})
	return res, nil
}

// placeFill runs the shared routing/persist/recalculate sequence inside
// an already-open unit of work.
func (s *Service) placeFill(ctx context.Context, store ports.Store, mode routing.Mode, in FillInput, it intent.Intent) (RecordResult, error) {
	snap, err := s.reader.Snapshot(ctx, store, in.Instrument)
	if err != nil {
		return RecordResult{}, err
	}

	dec, err := s.router.Decide(ctx, mode, routing.Request{
		Instrument: in.Instrument,
		Action:     in.Action,
		Quantity:   in.Quantity,
		Intent:     it,
		Snapshot:   snap,
	})
	if err != nil {
		return RecordResult{}, err
	}

	// Import mode trusts the source history; interactive closes must not
	// exceed what is open.
	if mode == routing.Interactive && dec.IsClose {
		if dec.IsLiquidation {
			err = s.validator.ValidateLiquidation(in.Quantity, snap)
		} else {
			err = s.validator.ValidateClose(in.Quantity, snap, dec.Direction)
		}
		if err != nil {
			return RecordResult{}, err
		}
	}

	var tradeID int64
	if dec.OpensNew {
		trade := &domain.Trade{
			Instrument:       in.Instrument,
			Direction:        dec.Direction,
			Status:           domain.StatusOpen,
			OpenedAt:         in.ExecutedAt,
			LatestActivityAt: in.ExecutedAt,
			Fees:             decimal.Zero,
			StopLoss:         in.StopLoss,
			TakeProfit:       in.TakeProfit,
			InitialRisk:      in.InitialRisk,
		}
		tradeID, err = store.CreateTrade(ctx, trade)
		if err != nil {
			return RecordResult{}, err
		}
	} else {
		tradeID = dec.TradeID
		trade, err := store.FindTradeByID(ctx, tradeID)
		if err != nil {
			return RecordResult{}, err
		}
		if trade == nil {
			return RecordResult{}, &domain.IntegrityError{TradeID: tradeID, Msg: "routed to a trade that does not exist"}
		}
		if !trade.IsOpen() {
			// Routing only ever selects open trades; reaching here is a
			// defect, not user error.
			ierr := &domain.IntegrityError{TradeID: tradeID, Msg: "fill routed to a non-open trade"}
			s.logger.Error(ctx, ierr, "routing selected a closed trade", map[string]interface{}{"tradeID": tradeID})
			return RecordResult{}, ierr
		}
	}

	ref := in.Ref
	if ref == "" {
		ref = id.New()
	}
	txn := &domain.Transaction{
		TradeID:    tradeID,
		Ref:        ref,
		Action:     dec.Action,
		Quantity:   in.Quantity,
		Price:      in.Price,
		Fees:       in.Fees,
		ExecutedAt: in.ExecutedAt,
		VenuePnL:   in.VenuePnL,
		Notes:      in.Notes,
	}
	txnID, err := store.CreateTransaction(ctx, txn)
	if err != nil {
		return RecordResult{}, err
	}

	if _, err := s.recalculateTrade(ctx, store, tradeID); err != nil {
		return RecordResult{}, err
	}

	return RecordResult{TradeID: tradeID, TransactionID: txnID, RoutingReason: dec.Reason}, nil
}

// FillPatch updates selected fields of an existing fill. Nil fields are
// left unchanged. A fill cannot be moved between trades; changing the
// instrument requires remove + record.
type FillPatch struct {
	Action     *domain.OrderSide
	Quantity   *decimal.Decimal
	Price      *decimal.Decimal
	Fees       *decimal.Decimal
	ExecutedAt *time.Time
	Notes      *string
}

// AmendFill applies a patch to a fill and recalculates its trade, all
// in one unit of work.
func (s *Service) AmendFill(ctx context.Context, transactionID int64, patch FillPatch) error {
	op := "AmendFill"
	err := s.store.RunInTransaction(ctx, func(store ports.Store) error {
		txn, err := store.FindTransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("fill %d: %w", transactionID, ports.ErrNotFound)
		}

		if patch.Action != nil {
			txn.Action = *patch.Action
		}
		if patch.Quantity != nil {
			txn.Quantity = *patch.Quantity
		}
		if patch.Price != nil {
			txn.Price = *patch.Price
		}
		if patch.Fees != nil {
			txn.Fees = *patch.Fees
		}
		if patch.ExecutedAt != nil {
			txn.ExecutedAt = *patch.ExecutedAt
		}
		if patch.Notes != nil {
			txn.Notes = *patch.Notes
		}

		if err := s.validator.ValidateFill(txn.Quantity, txn.Price, txn.Fees); err != nil {
			return err
		}
		if err := store.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.validateEditedExposure(ctx, store, txn.TradeID); err != nil {
			return err
		}
		_, err = s.recalculateTrade(ctx, store, txn.TradeID)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, op+": fill amended", map[string]interface{}{"transactionID": transactionID})
	return nil
}

// RemoveFill deletes a fill and recalculates its trade; a trade left
// with zero fills is deleted along with its tags and attachments.
func (s *Service) RemoveFill(ctx context.Context, transactionID int64) error {
	op := "RemoveFill"
	var deletedTrade bool
	err := s.store.RunInTransaction(ctx, func(store ports.Store) error {
		txn, err := store.FindTransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("fill %d: %w", transactionID, ports.ErrNotFound)
		}
		if err := store.DeleteTransaction(ctx, transactionID); err != nil {
			return err
		}
		if err := s.validateEditedExposure(ctx, store, txn.TradeID); err != nil {
			return err
		}
		out, err := s.recalculateTrade(ctx, store, txn.TradeID)
		if err != nil {
			return err
		}
		deletedTrade = out.TradeDeleted
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, op+": fill removed", map[string]interface{}{
		"transactionID": transactionID,
		"tradeDeleted":  deletedTrade,
	})
	return nil
}

// validateEditedExposure holds amended or shrunken fill histories to the
// same rule RecordFill enforces up front: a trade's exits must not
// exceed its entries. Editing a fill can break that invariant from
// either side (growing an exit, shrinking or removing an entry), so the
// totals are re-checked after the edit, inside the same unit of work.
func (s *Service) validateEditedExposure(ctx context.Context, store ports.Store, tradeID int64) error {
	trade, err := store.FindTradeByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return nil
	}
	fills, err := store.FindTransactionsByTradeID(ctx, tradeID)
	if err != nil {
		return err
	}

	totalEntry := decimal.Zero
	totalExit := decimal.Zero
	for _, f := range fills {
		if f.IsEntry(trade.Direction) {
			totalEntry = totalEntry.Add(f.Quantity)
		} else {
			totalExit = totalExit.Add(f.Quantity)
		}
	}
	if dmath.GreaterThan(totalExit, totalEntry, dmath.QuantityTolerance) {
		return domain.NewOverCloseError(trade.Instrument.Ticker, totalExit, totalEntry)
	}
	return nil
}

// ImportResult summarizes a bulk load.
type ImportResult struct {
	FillsImported int
	Results       []RecordResult
}

// ImportFills loads historical fills in one unit of work using the
// permissive import routing: labels are trusted, closes go to the
// oldest open trade, and over-close validation is skipped so imported
// history is accepted even if momentarily inconsistent.
func (s *Service) ImportFills(ctx context.Context, inputs []FillInput) (ImportResult, error) {
	op := "ImportFills"
	for i := range inputs {
		if err := s.validator.ValidateFill(inputs[i].Quantity, inputs[i].Price, inputs[i].Fees); err != nil {
			return ImportResult{}, fmt.Errorf("fill %d of %d: %w", i+1, len(inputs), err)
		}
	}

	ordered := make([]FillInput, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	var res ImportResult
	err := s.store.RunInTransaction(ctx, func(store ports.Store) error {
		for _, in := range ordered {
			one, err := s.placeFill(ctx, store, routing.Import, in, intent.Parse(in.Label))
			if err != nil {
				return err
			}
			res.Results = append(res.Results, one)
			res.FillsImported++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.Info(ctx, op+": import committed", map[string]interface{}{"fills": res.FillsImported})
	return res, nil
}

// GetPnlForTrade computes the full P&L picture for one trade.
func (s *Service) GetPnlForTrade(ctx context.Context, tradeID int64) (pnl.Result, error) {
	trade, err := s.store.FindTradeByID(ctx, tradeID)
	if err != nil {
		return pnl.Result{}, err
	}
	if trade == nil {
		return pnl.Result{}, fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	fills, err := s.store.FindTransactionsByTradeID(ctx, tradeID)
	if err != nil {
		return pnl.Result{}, err
	}
	return pnl.Compute(trade, fills)
}

// TradeView is a trade with its derived P&L fields, for display.
type TradeView struct {
	Trade           *domain.Trade
	OpenQuantity    decimal.Decimal
	ClosedQuantity  decimal.Decimal
	AvgOpenPrice    decimal.Decimal
	RealizedNet     decimal.Decimal
	UnrealizedGross *decimal.Decimal
	Outcome         pnl.Outcome
}

// ListTradesForView returns every trade with derived open-quantity and
// unrealized-P&L fields.
func (s *Service) ListTradesForView(ctx context.Context) ([]TradeView, error) {
	trades, err := s.store.FindAllTrades(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]TradeView, 0, len(trades))
	for _, trade := range trades {
		fills, err := s.store.FindTransactionsByTradeID(ctx, trade.ID)
		if err != nil {
			return nil, err
		}
		res, err := pnl.Compute(trade, fills)
		if err != nil {
			return nil, err
		}
		views = append(views, TradeView{
			Trade:           trade,
			OpenQuantity:    res.OpenQuantity,
			ClosedQuantity:  res.ClosedQuantity,
			AvgOpenPrice:    res.AvgOpenPrice,
			RealizedNet:     res.RealizedNet,
			UnrealizedGross: res.UnrealizedGross,
			Outcome:         res.Outcome,
		})
	}
	return views, nil
}

// GetCurrentPosition derives the position snapshot for an instrument.
func (s *Service) GetCurrentPosition(ctx context.Context, instr domain.Instrument) (domain.PositionSnapshot, error) {
	return s.reader.Snapshot(ctx, s.store, instr)
}

// RefreshMarkPrice fetches the instrument's current price and stores it
// on every open trade so views can show unrealized P&L.
func (s *Service) RefreshMarkPrice(ctx context.Context, instr domain.Instrument) error {
	op := "RefreshMarkPrice"
	if s.prices == nil {
		return fmt.Errorf("no mark price source configured: %w", ports.ErrConfigurationError)
	}
	price, err := s.prices.SpotPrice(ctx, instr.Ticker)
	if err != nil {
		return fmt.Errorf("failed to fetch mark price for %s: %w", instr.Ticker, err)
	}
	err = s.store.RunInTransaction(ctx, func(store ports.Store) error {
		trades, err := store.FindOpenTradesByInstrument(ctx, instr)
		if err != nil {
			return err
		}
		for _, trade := range trades {
			p := price
			trade.MarkPrice = &p
			if err := store.UpdateTrade(ctx, trade); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, op+": mark price updated", map[string]interface{}{
		"instrument": instr.String(),
		"price":      price.String(),
	})
	return nil
}

// TagTrade attaches a tag to a trade.
func (s *Service) TagTrade(ctx context.Context, tradeID int64, tag string) error {
	if tag == "" {
		return domain.NewValidationError("tag cannot be empty")
	}
	trade, err := s.store.FindTradeByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	return s.store.AddTradeTag(ctx, tradeID, tag)
}

// AttachFile records a file attachment path on a trade.
func (s *Service) AttachFile(ctx context.Context, tradeID int64, path string) error {
	if path == "" {
		return domain.NewValidationError("attachment path cannot be empty")
	}
	trade, err := s.store.FindTradeByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	return s.store.AddTradeAttachment(ctx, tradeID, path)
}
