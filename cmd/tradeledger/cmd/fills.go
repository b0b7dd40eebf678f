package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/app"
)

var amendCmd = &cobra.Command{
	Use:   "amend <transaction-id>",
	Short: "Amend an existing fill",
	Long: `Amend selected fields of a fill; the owning trade is recalculated in
the same transaction. Only the flags you pass are changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAmend,
}

var removeCmd = &cobra.Command{
	Use:   "remove <transaction-id>",
	Short: "Remove a fill",
	Long: `Remove a fill and recalculate its trade. A trade left with no fills
is deleted, along with its tags and attachments.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

var tagCmd = &cobra.Command{
	Use:   "tag <trade-id> <tag>",
	Short: "Tag a trade",
	Args:  cobra.ExactArgs(2),
	RunE:  runTag,
}

var amendFlags struct {
	action string
	qty    string
	price  string
	fee    string
	at     string
	notes  string
}

func init() {
	f := amendCmd.Flags()
	f.StringVar(&amendFlags.action, "action", "", "new side, BUY or SELL")
	f.StringVar(&amendFlags.qty, "qty", "", "new quantity")
	f.StringVar(&amendFlags.price, "price", "", "new price")
	f.StringVar(&amendFlags.fee, "fee", "", "new fees")
	f.StringVar(&amendFlags.at, "at", "", "new execution time, RFC3339")
	f.StringVar(&amendFlags.notes, "notes", "", "new notes")
	rootCmd.AddCommand(amendCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(tagCmd)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	return id, nil
}

func runAmend(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	txID, err := parseID(args[0])
	if err != nil {
		return err
	}

	var patch app.FillPatch
	if amendFlags.action != "" {
		side, err := parseAction(amendFlags.action)
		if err != nil {
			return fmt.Errorf("invalid --action: %w", err)
		}
		patch.Action = &side
	}
	if patch.Quantity, err = optionalDecimal(amendFlags.qty, "--qty"); err != nil {
		return err
	}
	if patch.Price, err = optionalDecimal(amendFlags.price, "--price"); err != nil {
		return err
	}
	if patch.Fees, err = optionalDecimal(amendFlags.fee, "--fee"); err != nil {
		return err
	}
	if amendFlags.at != "" {
		at, err := time.Parse(time.RFC3339, amendFlags.at)
		if err != nil {
			return fmt.Errorf("invalid --at %q (want RFC3339): %w", amendFlags.at, err)
		}
		patch.ExecutedAt = &at
	}
	if cmd.Flags().Changed("notes") {
		patch.Notes = &amendFlags.notes
	}

	if err := e.svc.AmendFill(cmd.Context(), txID, patch); err != nil {
		return err
	}
	fmt.Printf("fill %d amended\n", txID)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	txID, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := e.svc.RemoveFill(cmd.Context(), txID); err != nil {
		return err
	}
	fmt.Printf("fill %d removed\n", txID)
	return nil
}

func runTag(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	tradeID, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := e.svc.TagTrade(cmd.Context(), tradeID, args[1]); err != nil {
		return err
	}
	fmt.Printf("trade %d tagged %q\n", tradeID, args[1])
	return nil
}
