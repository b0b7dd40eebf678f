// Package sqlite implements ports.Store on a local SQLite database.
// Fills and trades are written inside real database transactions;
// decimal fields are stored as TEXT to keep them exact.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlStore implements ports.Store against a querier. db is nil when the
// store is already bound to a transaction.
type sqlStore struct {
	q      querier
	db     *sql.DB
	logger ports.Logger
}

// Repository is the database-backed Store. Create it with NewRepository
// and close it when done.
type Repository struct {
	sqlStore
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the ledger database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradeledger.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Foreign keys must be on for tag/attachment cascade deletes.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Single-writer model; limiting connections avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{sqlStore{q: db, db: db, logger: cfg.Logger}}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite ledger database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker TEXT NOT NULL,
	asset_class TEXT NOT NULL,
	exchange TEXT NOT NULL,
	direction TEXT NOT NULL,
	status TEXT NOT NULL,
	opened_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP DEFAULT NULL,
	latest_activity_at TIMESTAMP DEFAULT NULL,
	fees TEXT NOT NULL DEFAULT '0',
	mark_price TEXT DEFAULT NULL,
	stop_loss TEXT DEFAULT NULL,
	take_profit TEXT DEFAULT NULL,
	initial_risk TEXT DEFAULT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
	ref TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	fees TEXT NOT NULL DEFAULT '0',
	executed_at TIMESTAMP NOT NULL,
	venue_pnl TEXT DEFAULT NULL,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trade_tags (
	trade_id INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	UNIQUE (trade_id, tag)
);

CREATE TABLE IF NOT EXISTS trade_attachments (
	trade_id INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	added_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_instrument_status
	ON trades (ticker, asset_class, exchange, status);
CREATE INDEX IF NOT EXISTS idx_transactions_trade_time
	ON transactions (trade_id, executed_at, id);
`

func (s *sqlStore) initializeSchema(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite ledger database")
		return r.db.Close()
	}
	return nil
}

// RunInTransaction executes fn atomically. A store already bound to a
// transaction joins it, so nested units of work share one commit.
func (s *sqlStore) RunInTransaction(ctx context.Context, fn func(ports.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &sqlStore{q: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, rbErr, "Rollback failed after unit-of-work error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- TradeRepository implementation ---

// CreateTrade saves a new trade and returns its assigned ID.
func (s *sqlStore) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (ticker, asset_class, exchange, direction, status,
	                    opened_at, closed_at, latest_activity_at, fees,
	                    mark_price, stop_loss, take_profit, initial_risk)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.q.ExecContext(ctx, query,
		trade.Instrument.Ticker, trade.Instrument.AssetClass, trade.Instrument.Exchange,
		trade.Direction, trade.Status,
		trade.OpenedAt, nullTime(trade.ClosedAt), nullTime(trade.LatestActivityAt),
		trade.Fees.String(),
		nullDecimal(trade.MarkPrice), nullDecimal(trade.StopLoss),
		nullDecimal(trade.TakeProfit), nullDecimal(trade.InitialRisk))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for %s: %w", trade.Instrument.Ticker, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Instrument.Ticker, err)
	}
	trade.ID = id
	s.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "ticker": trade.Instrument.Ticker})
	return id, nil
}

// UpdateTrade rewrites an existing trade's fields.
func (s *sqlStore) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET ticker = ?, asset_class = ?, exchange = ?, direction = ?, status = ?,
	    opened_at = ?, closed_at = ?, latest_activity_at = ?, fees = ?,
	    mark_price = ?, stop_loss = ?, take_profit = ?, initial_risk = ?
	WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query,
		trade.Instrument.Ticker, trade.Instrument.AssetClass, trade.Instrument.Exchange,
		trade.Direction, trade.Status,
		trade.OpenedAt, nullTime(trade.ClosedAt), nullTime(trade.LatestActivityAt),
		trade.Fees.String(),
		nullDecimal(trade.MarkPrice), nullDecimal(trade.StopLoss),
		nullDecimal(trade.TakeProfit), nullDecimal(trade.InitialRisk),
		trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w", trade.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade ID %d: %w", trade.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	return nil
}

// DeleteTrade removes a trade; tags and attachments cascade.
func (s *sqlStore) DeleteTrade(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM trades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade ID %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete of trade ID %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("trade ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "Trade deleted", map[string]interface{}{"tradeID": id})
	return nil
}

const tradeColumns = `
	id, ticker, asset_class, exchange, direction, status,
	opened_at, closed_at, latest_activity_at, fees,
	mark_price, stop_loss, take_profit, initial_risk`

// FindTradeByID retrieves a trade (with tags) by its unique ID.
func (s *sqlStore) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	row := s.q.QueryRowContext(ctx, `SELECT`+tradeColumns+` FROM trades WHERE id = ?`, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	tags, err := s.FindTagsByTradeID(ctx, id)
	if err != nil {
		return nil, err
	}
	trade.Tags = tags
	return trade, nil
}

// FindOpenTradesByInstrument retrieves open trades for the instrument
// tuple, oldest first. Tags are not populated on list reads.
func (s *sqlStore) FindOpenTradesByInstrument(ctx context.Context, instr domain.Instrument) ([]*domain.Trade, error) {
	const query = `
	SELECT` + tradeColumns + `
	FROM trades
	WHERE ticker = ? AND asset_class = ? AND exchange = ? AND status = ?
	ORDER BY opened_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, instr.Ticker, instr.AssetClass, instr.Exchange, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades for %s: %w", instr, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// FindAllTrades retrieves every trade, most recently opened first.
func (s *sqlStore) FindAllTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT`+tradeColumns+` FROM trades ORDER BY opened_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// TouchLatestActivity stamps ts on all trades sharing instrument and direction.
func (s *sqlStore) TouchLatestActivity(ctx context.Context, instr domain.Instrument, dir domain.Direction, ts time.Time) error {
	const query = `
	UPDATE trades SET latest_activity_at = ?
	WHERE ticker = ? AND asset_class = ? AND exchange = ? AND direction = ?`
	if _, err := s.q.ExecContext(ctx, query, ts, instr.Ticker, instr.AssetClass, instr.Exchange, dir); err != nil {
		return fmt.Errorf("failed to stamp latest activity for %s: %w", instr, err)
	}
	return nil
}

// AddTradeTag attaches a tag, ignoring duplicates.
func (s *sqlStore) AddTradeTag(ctx context.Context, tradeID int64, tag string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO trade_tags (trade_id, tag) VALUES (?, ?)`, tradeID, tag)
	if err != nil {
		return fmt.Errorf("failed to tag trade %d: %w", tradeID, err)
	}
	return nil
}

// FindTagsByTradeID lists a trade's tags.
func (s *sqlStore) FindTagsByTradeID(ctx context.Context, tradeID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT tag FROM trade_tags WHERE trade_id = ? ORDER BY tag`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags for trade %d: %w", tradeID, err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// AddTradeAttachment records an attachment path.
func (s *sqlStore) AddTradeAttachment(ctx context.Context, tradeID int64, path string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO trade_attachments (trade_id, path, added_at) VALUES (?, ?, ?)`,
		tradeID, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to attach file to trade %d: %w", tradeID, err)
	}
	return nil
}

// FindAttachmentsByTradeID lists a trade's attachment paths.
func (s *sqlStore) FindAttachmentsByTradeID(ctx context.Context, tradeID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT path FROM trade_attachments WHERE trade_id = ? ORDER BY added_at, path`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments for trade %d: %w", tradeID, err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// --- TransactionRepository implementation ---

// CreateTransaction saves a new fill and returns its assigned ID.
func (s *sqlStore) CreateTransaction(ctx context.Context, txn *domain.Transaction) (int64, error) {
	const query = `
	INSERT INTO transactions (trade_id, ref, action, quantity, price, fees, executed_at, venue_pnl, notes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.q.ExecContext(ctx, query,
		txn.TradeID, txn.Ref, txn.Action,
		txn.Quantity.String(), txn.Price.String(), txn.Fees.String(),
		txn.ExecutedAt, nullDecimal(txn.VenuePnL), txn.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fill for trade %d: %w", txn.TradeID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for fill on trade %d: %w", txn.TradeID, err)
	}
	txn.ID = id
	s.logger.Debug(ctx, "Fill created", map[string]interface{}{"transactionID": id, "tradeID": txn.TradeID})
	return id, nil
}

// UpdateTransaction rewrites an existing fill.
func (s *sqlStore) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	const query = `
	UPDATE transactions
	SET trade_id = ?, ref = ?, action = ?, quantity = ?, price = ?, fees = ?,
	    executed_at = ?, venue_pnl = ?, notes = ?
	WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query,
		txn.TradeID, txn.Ref, txn.Action,
		txn.Quantity.String(), txn.Price.String(), txn.Fees.String(),
		txn.ExecutedAt, nullDecimal(txn.VenuePnL), txn.Notes, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update fill ID %d: %w", txn.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for fill ID %d: %w", txn.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("fill ID %d not found for update: %w", txn.ID, ports.ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a fill by ID.
func (s *sqlStore) DeleteTransaction(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fill ID %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete of fill ID %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("fill ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	return nil
}

const txnColumns = ` id, trade_id, ref, action, quantity, price, fees, executed_at, venue_pnl, notes`

// FindTransactionByID retrieves a fill by ID.
func (s *sqlStore) FindTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := s.q.QueryRowContext(ctx, `SELECT`+txnColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query fill by ID %d: %w", id, err)
	}
	return txn, nil
}

// FindTransactionsByTradeID retrieves a trade's fills in matching order:
// execution time ascending, insertion order breaking ties.
func (s *sqlStore) FindTransactionsByTradeID(ctx context.Context, tradeID int64) ([]*domain.Transaction, error) {
	const query = `
	SELECT` + txnColumns + `
	FROM transactions WHERE trade_id = ?
	ORDER BY executed_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills for trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill for trade %d: %w", tradeID, err)
		}
		txns = append(txns, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fill rows: %w", err)
	}
	return txns, nil
}

// --- Helper scan functions ---

// scanner is compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		direction, status                            string
		closedAt, latestAt                           sql.NullTime
		fees                                         string
		markPrice, stopLoss, takeProfit, initialRisk sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.Instrument.Ticker, &t.Instrument.AssetClass, &t.Instrument.Exchange,
		&direction, &status, &t.OpenedAt, &closedAt, &latestAt, &fees,
		&markPrice, &stopLoss, &takeProfit, &initialRisk)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	if latestAt.Valid {
		t.LatestActivityAt = latestAt.Time
	}
	if t.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("corrupt fees value %q: %w", fees, err)
	}
	if t.MarkPrice, err = parseNullDecimal(markPrice); err != nil {
		return nil, err
	}
	if t.StopLoss, err = parseNullDecimal(stopLoss); err != nil {
		return nil, err
	}
	if t.TakeProfit, err = parseNullDecimal(takeProfit); err != nil {
		return nil, err
	}
	if t.InitialRisk, err = parseNullDecimal(initialRisk); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	var (
		action                string
		quantity, price, fees string
		venuePnL              sql.NullString
	)
	err := s.Scan(&tx.ID, &tx.TradeID, &tx.Ref, &action, &quantity, &price, &fees,
		&tx.ExecutedAt, &venuePnL, &tx.Notes)
	if err != nil {
		return nil, err
	}
	tx.Action = domain.OrderSide(action)
	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt quantity value %q: %w", quantity, err)
	}
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt price value %q: %w", price, err)
	}
	if tx.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("corrupt fees value %q: %w", fees, err)
	}
	if tx.VenuePnL, err = parseNullDecimal(venuePnL); err != nil {
		return nil, err
	}
	return tx, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt decimal value %q: %w", s.String, err)
	}
	return &d, nil
}
