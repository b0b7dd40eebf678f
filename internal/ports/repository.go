package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
)

// Store is the persistence port for trades and their fills. Adapters
// (SQLite, in-memory fake) implement it; the core never sees a database
// handle directly.
type Store interface {
	TradeRepository
	TransactionRepository

	// RunInTransaction executes fn as one atomic unit of work: every
	// mutation inside fn commits together or not at all. fn receives a
	// Store bound to the transaction; calling RunInTransaction on that
	// store joins the enclosing transaction instead of nesting.
	RunInTransaction(ctx context.Context, fn func(Store) error) error
}

// TradeRepository stores and retrieves trade aggregates.
type TradeRepository interface {
	// CreateTrade saves a new trade and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// UpdateTrade rewrites an existing trade's fields.
	UpdateTrade(ctx context.Context, trade *domain.Trade) error
	// DeleteTrade removes a trade, cascading its tags and attachments.
	DeleteTrade(ctx context.Context, id int64) error
	// FindTradeByID retrieves a trade by ID. Returns nil, nil if absent.
	FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindOpenTradesByInstrument retrieves open-status trades for the
	// instrument tuple, ordered by open time ascending.
	FindOpenTradesByInstrument(ctx context.Context, instr domain.Instrument) ([]*domain.Trade, error)
	// FindAllTrades retrieves every trade, ordered by open time descending.
	FindAllTrades(ctx context.Context) ([]*domain.Trade, error)
	// TouchLatestActivity stamps ts as the latest-activity time on all
	// trades sharing the instrument and direction.
	TouchLatestActivity(ctx context.Context, instr domain.Instrument, dir domain.Direction, ts time.Time) error

	// AddTradeTag attaches a tag to a trade (no-op if already present).
	AddTradeTag(ctx context.Context, tradeID int64, tag string) error
	// FindTagsByTradeID lists a trade's tags.
	FindTagsByTradeID(ctx context.Context, tradeID int64) ([]string, error)
	// AddTradeAttachment records a file attachment path for a trade.
	AddTradeAttachment(ctx context.Context, tradeID int64, path string) error
	// FindAttachmentsByTradeID lists a trade's attachment paths.
	FindAttachmentsByTradeID(ctx context.Context, tradeID int64) ([]string, error)
}

// TransactionRepository stores and retrieves individual fills.
type TransactionRepository interface {
	// CreateTransaction saves a new fill and returns its assigned ID.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (int64, error)
	// UpdateTransaction rewrites an existing fill.
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
	// DeleteTransaction removes a fill by ID.
	DeleteTransaction(ctx context.Context, id int64) error
	// FindTransactionByID retrieves a fill by ID. Returns nil, nil if absent.
	FindTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// FindTransactionsByTradeID retrieves a trade's fills ordered by
	// execution time ascending, insertion order breaking ties.
	FindTransactionsByTradeID(ctx context.Context, tradeID int64) ([]*domain.Transaction, error)
}

// MarkPriceSource supplies a one-shot market price used to refresh the
// mark price on open trades. Streaming market data is out of scope.
type MarkPriceSource interface {
	SpotPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}
