// Package markprice implements ports.MarkPriceSource against the
// Binance spot REST API. It performs one-shot price lookups only; the
// ledger never streams market data.
package markprice

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"tradeledger/internal/ports"
)

// Client fetches spot prices from Binance.
type Client struct {
	api    *binance.Client
	logger ports.Logger
}

// Config holds configuration for the Binance price client. API keys are
// optional: the ticker price endpoint is public.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger
}

// New creates a Binance-backed mark price source.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance price client")
	}
	return &Client{
		api:    binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger: cfg.Logger,
	}, nil
}

// SpotPrice returns the current price for a ticker, e.g. "ETHUSDT".
func (c *Client) SpotPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	prices, err := c.api.NewListPricesService().Symbol(ticker).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price for %s: %w", ticker, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price returned for %s: %w", ticker, ports.ErrPriceUnavailable)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable price %q for %s: %w", prices[0].Price, ticker, err)
	}
	c.logger.Debug(ctx, "Spot price fetched", map[string]interface{}{"ticker": ticker, "price": price.String()})
	return price, nil
}
