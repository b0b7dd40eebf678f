package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradeledger/internal/app"
)

var importCmd = &cobra.Command{
	Use:   "import <fills.csv>",
	Short: "Bulk-import historical fills from CSV",
	Long: `Import fills from a CSV file in one transaction, using the permissive
import routing: source labels are trusted, closes consume the oldest
open trade first, and over-close validation is skipped.

Expected header:
  time,ticker,asset_class,exchange,action,label,quantity,price,fees,ref,notes

time is RFC3339; asset_class, exchange, action, label, fees, ref and
notes may be empty.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer file.Close()

	inputs, err := readFillsCSV(e, file)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no fills found in %s", args[0])
	}

	res, err := e.svc.ImportFills(cmd.Context(), inputs)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d fills\n", res.FillsImported)
	return nil
}

// column indexes of the import CSV.
const (
	colTime = iota
	colTicker
	colAssetClass
	colExchange
	colAction
	colLabel
	colQuantity
	colPrice
	colFees
	colRef
	colNotes
	colCount
)

func readFillsCSV(e *env, r io.Reader) ([]app.FillInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = colCount

	var inputs []app.FillInput
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(record[colTime], "time") {
			continue // header
		}

		executedAt, err := time.Parse(time.RFC3339, record[colTime])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time %q: %w", line, record[colTime], err)
		}
		qty, err := decimal.NewFromString(record[colQuantity])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid quantity %q: %w", line, record[colQuantity], err)
		}
		price, err := decimal.NewFromString(record[colPrice])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q: %w", line, record[colPrice], err)
		}
		fees := decimal.Zero
		if record[colFees] != "" {
			if fees, err = decimal.NewFromString(record[colFees]); err != nil {
				return nil, fmt.Errorf("line %d: invalid fees %q: %w", line, record[colFees], err)
			}
		}
		action, err := parseAction(record[colAction])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		inputs = append(inputs, app.FillInput{
			Instrument: e.instrumentFromFlags(record[colTicker], record[colAssetClass], record[colExchange]),
			Action:     action,
			Label:      record[colLabel],
			Quantity:   qty,
			Price:      price,
			Fees:       fees,
			ExecutedAt: executedAt,
			Ref:        record[colRef],
			Notes:      record[colNotes],
		})
	}
	return inputs, nil
}
