package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tradeledger/config"
	"tradeledger/internal/adapters/logger"
	"tradeledger/internal/adapters/markprice"
	"tradeledger/internal/adapters/sqlite"
	"tradeledger/internal/app"
	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

var rootCmd = &cobra.Command{
	Use:   "tradeledger",
	Short: "A trade journal that reconstructs trades from raw fills",
	Long: `tradeledger records individual buy/sell fills, groups them into
directional trades, and computes realized and unrealized P&L with FIFO
lot matching and fee attribution.

Examples:
  tradeledger record --ticker ETHUSDT --label "buy to open" --qty 10 --price 2000 --fee 1
  tradeledger import fills.csv
  tradeledger pnl 1
  tradeledger positions ETHUSDT`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env bundles the wired application for one command invocation.
type env struct {
	cfg    *config.Config
	logger ports.Logger
	repo   *sqlite.Repository
	svc    *app.Service
}

func (e *env) close() {
	if e.repo != nil {
		_ = e.repo.Close()
	}
}

// newEnv loads config and wires logger -> sqlite store -> service.
func newEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}

	prices, err := markprice.New(markprice.Config{
		APIKey:    cfg.BinanceAPIKey,
		SecretKey: cfg.BinanceSecretKey,
		Logger:    appLogger,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}

	svc, err := app.NewService(appLogger, repo, prices)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: appLogger, repo: repo, svc: svc}, nil
}

// instrumentFromFlags builds the instrument tuple, filling in configured
// defaults for asset class and exchange.
func (e *env) instrumentFromFlags(ticker, assetClass, exchange string) domain.Instrument {
	if assetClass == "" {
		assetClass = e.cfg.DefaultAssetClass
	}
	if exchange == "" {
		exchange = e.cfg.DefaultExchange
	}
	return domain.Instrument{Ticker: ticker, AssetClass: assetClass, Exchange: exchange}
}

// parseAction normalizes a user-supplied fill side. Empty is allowed
// where an order label or position state resolves the side downstream.
func parseAction(raw string) (domain.OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "BUY":
		return domain.Buy, nil
	case "SELL":
		return domain.Sell, nil
	}
	return "", fmt.Errorf("invalid action %q (want BUY or SELL)", raw)
}
