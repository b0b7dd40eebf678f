// Package config loads ledger configuration from environment variables
// (optionally via a .env file).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"tradeledger/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Defaults applied when a fill omits the instrument details.
	DefaultAssetClass string
	DefaultExchange   string

	// Binance API (optional; only needed for mark price refresh)
	BinanceAPIKey    string
	BinanceSecretKey string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env if present; pure env vars are fine too.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.DBPath = getEnv("DB_PATH", "./data/tradeledger.db")

	levelStr := getEnv("LOG_LEVEL", "INFO")
	switch strings.ToUpper(levelStr) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		cfg.LogLevel = logger.ParseLevel(levelStr)
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of DEBUG, INFO, WARN, ERROR", levelStr))
	}

	cfg.DefaultAssetClass = getEnv("DEFAULT_ASSET_CLASS", "crypto")
	cfg.DefaultExchange = getEnv("DEFAULT_EXCHANGE", "BINANCE")

	// Keys are optional: without them the mark price command is simply
	// unavailable for private endpoints (the ticker endpoint is public).
	// Setting only one of the pair is a misconfiguration.
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	if (cfg.BinanceAPIKey == "") != (cfg.BinanceSecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
