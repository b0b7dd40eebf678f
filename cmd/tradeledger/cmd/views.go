package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pnlCmd = &cobra.Command{
	Use:   "pnl <trade-id>",
	Short: "Show the P&L breakdown for a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runPnl,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all trades with derived P&L fields",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var positionsCmd = &cobra.Command{
	Use:   "positions <ticker>",
	Short: "Show the current position for an instrument",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositions,
}

var markCmd = &cobra.Command{
	Use:   "mark <ticker>",
	Short: "Refresh the mark price on open trades for an instrument",
	Args:  cobra.ExactArgs(1),
	RunE:  runMark,
}

var viewFlags struct {
	assetClass string
	exchange   string
}

func init() {
	for _, c := range []*cobra.Command{positionsCmd, markCmd} {
		c.Flags().StringVar(&viewFlags.assetClass, "asset-class", "", "asset class (default from config)")
		c.Flags().StringVar(&viewFlags.exchange, "exchange", "", "exchange (default from config)")
	}
	rootCmd.AddCommand(pnlCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(markCmd)
}

func runPnl(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	tradeID, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := e.svc.GetPnlForTrade(cmd.Context(), tradeID)
	if err != nil {
		return err
	}

	fmt.Printf("trade %d\n", tradeID)
	fmt.Printf("  realized gross: %s\n", res.RealizedGross)
	fmt.Printf("  realized net:   %s\n", res.RealizedNet)
	fmt.Printf("  closed fees:    %s\n", res.ClosedFees)
	fmt.Printf("  closed qty:     %s\n", res.ClosedQuantity)
	fmt.Printf("  open qty:       %s\n", res.OpenQuantity)
	if res.OpenQuantity.Sign() > 0 {
		fmt.Printf("  avg open price: %s\n", res.AvgOpenPrice)
	}
	if res.UnrealizedGross != nil {
		fmt.Printf("  unrealized:     %s\n", *res.UnrealizedGross)
	}
	if res.RMultiple != nil {
		fmt.Printf("  r-multiple:     %s\n", res.RMultiple.Round(2))
	}
	fmt.Printf("  outcome:        %s\n", res.Outcome)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	views, err := e.svc.ListTradesForView(cmd.Context())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("no trades recorded")
		return nil
	}

	fmt.Printf("%-5s %-10s %-6s %-7s %12s %12s %12s %s\n",
		"ID", "TICKER", "DIR", "STATUS", "OPEN QTY", "NET P&L", "UNREALIZED", "OUTCOME")
	for _, v := range views {
		unrealized := "-"
		if v.UnrealizedGross != nil {
			unrealized = v.UnrealizedGross.Round(2).String()
		}
		fmt.Printf("%-5d %-10s %-6s %-7s %12s %12s %12s %s\n",
			v.Trade.ID, v.Trade.Instrument.Ticker, v.Trade.Direction, v.Trade.Status,
			v.OpenQuantity, v.RealizedNet.Round(2), unrealized, v.Outcome)
	}
	return nil
}

func runPositions(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	instr := e.instrumentFromFlags(args[0], viewFlags.assetClass, viewFlags.exchange)
	snap, err := e.svc.GetCurrentPosition(cmd.Context(), instr)
	if err != nil {
		return err
	}

	fmt.Printf("%s: net position %s\n", instr, snap.NetPosition)
	for _, ot := range snap.OpenTrades {
		fmt.Printf("  trade %d (%s): %s open\n", ot.TradeID, ot.Direction, ot.Size)
	}
	return nil
}

func runMark(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	instr := e.instrumentFromFlags(args[0], viewFlags.assetClass, viewFlags.exchange)
	if err := e.svc.RefreshMarkPrice(cmd.Context(), instr); err != nil {
		return err
	}
	fmt.Printf("mark price refreshed for %s\n", instr)
	return nil
}
