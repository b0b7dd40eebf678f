package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradeledger/internal/app"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one fill",
	Long: `Record a single buy or sell fill. The fill is routed to an existing
open trade or opens a new one, and the trade's aggregates are
recalculated, all in one transaction.

Examples:
  tradeledger record --ticker ETHUSDT --label "buy to open" --qty 10 --price 2000 --fee 1
  tradeledger record --ticker ETHUSDT --action SELL --qty 4 --price 2100`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var recordFlags struct {
	ticker     string
	assetClass string
	exchange   string
	action     string
	label      string
	qty        string
	price      string
	fee        string
	at         string
	ref        string
	notes      string
	stopLoss   string
	takeProfit string
	risk       string
}

func init() {
	f := recordCmd.Flags()
	f.StringVar(&recordFlags.ticker, "ticker", "", "instrument ticker (required)")
	f.StringVar(&recordFlags.assetClass, "asset-class", "", "asset class (default from config)")
	f.StringVar(&recordFlags.exchange, "exchange", "", "exchange (default from config)")
	f.StringVar(&recordFlags.action, "action", "", "BUY or SELL (optional when --label resolves it)")
	f.StringVar(&recordFlags.label, "label", "", "raw order type text, e.g. \"sell to close\"")
	f.StringVar(&recordFlags.qty, "qty", "", "fill quantity (required)")
	f.StringVar(&recordFlags.price, "price", "", "fill price (required)")
	f.StringVar(&recordFlags.fee, "fee", "0", "fill fees")
	f.StringVar(&recordFlags.at, "at", "", "execution time, RFC3339 (default now)")
	f.StringVar(&recordFlags.ref, "ref", "", "venue execution reference (generated when empty)")
	f.StringVar(&recordFlags.notes, "notes", "", "free-text notes")
	f.StringVar(&recordFlags.stopLoss, "stop-loss", "", "initial stop loss, recorded on a new trade")
	f.StringVar(&recordFlags.takeProfit, "take-profit", "", "initial take profit, recorded on a new trade")
	f.StringVar(&recordFlags.risk, "risk", "", "initial risk amount, denominator of the R-multiple")
	_ = recordCmd.MarkFlagRequired("ticker")
	_ = recordCmd.MarkFlagRequired("qty")
	_ = recordCmd.MarkFlagRequired("price")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	qty, err := decimal.NewFromString(recordFlags.qty)
	if err != nil {
		return fmt.Errorf("invalid --qty %q: %w", recordFlags.qty, err)
	}
	price, err := decimal.NewFromString(recordFlags.price)
	if err != nil {
		return fmt.Errorf("invalid --price %q: %w", recordFlags.price, err)
	}
	fee, err := decimal.NewFromString(recordFlags.fee)
	if err != nil {
		return fmt.Errorf("invalid --fee %q: %w", recordFlags.fee, err)
	}

	executedAt := time.Now().UTC()
	if recordFlags.at != "" {
		executedAt, err = time.Parse(time.RFC3339, recordFlags.at)
		if err != nil {
			return fmt.Errorf("invalid --at %q (want RFC3339): %w", recordFlags.at, err)
		}
	}

	action, err := parseAction(recordFlags.action)
	if err != nil {
		return fmt.Errorf("invalid --action: %w", err)
	}

	in := app.FillInput{
		Instrument: e.instrumentFromFlags(recordFlags.ticker, recordFlags.assetClass, recordFlags.exchange),
		Action:     action,
		Label:      recordFlags.label,
		Quantity:   qty,
		Price:      price,
		Fees:       fee,
		ExecutedAt: executedAt,
		Ref:        recordFlags.ref,
		Notes:      recordFlags.notes,
	}
	if in.StopLoss, err = optionalDecimal(recordFlags.stopLoss, "--stop-loss"); err != nil {
		return err
	}
	if in.TakeProfit, err = optionalDecimal(recordFlags.takeProfit, "--take-profit"); err != nil {
		return err
	}
	if in.InitialRisk, err = optionalDecimal(recordFlags.risk, "--risk"); err != nil {
		return err
	}

	res, err := e.svc.RecordFill(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Printf("fill %d recorded on trade %d: %s\n", res.TransactionID, res.TradeID, res.RoutingReason)
	return nil
}

func optionalDecimal(s, flag string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", flag, s, err)
	}
	return &d, nil
}
