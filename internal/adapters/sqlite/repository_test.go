package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	testInstr = domain.Instrument{Ticker: "ETHUSDT", AssetClass: "crypto", Exchange: "BINANCE"}
	baseTime  = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "ledger_test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err, "failed to initialize test database")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTrade(dir domain.Direction) *domain.Trade {
	return &domain.Trade{
		Instrument:       testInstr,
		Direction:        dir,
		Status:           domain.StatusOpen,
		OpenedAt:         baseTime,
		LatestActivityAt: baseTime,
		Fees:             decimal.Zero,
	}
}

func newFill(tradeID int64, action domain.OrderSide, qty string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		TradeID:    tradeID,
		Ref:        "ref-" + qty,
		Action:     action,
		Quantity:   dec(qty),
		Price:      dec("100"),
		Fees:       dec("0.1"),
		ExecutedAt: at,
	}
}

func TestCreateAndFindTrade(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	risk := dec("50")
	trade := newTrade(domain.Long)
	trade.InitialRisk = &risk
	trade.Fees = dec("1.25")

	id, err := repo.CreateTrade(ctx, trade)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.FindTradeByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testInstr, got.Instrument)
	assert.Equal(t, domain.Long, got.Direction)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.True(t, got.Fees.Equal(dec("1.25")))
	require.NotNil(t, got.InitialRisk)
	assert.True(t, got.InitialRisk.Equal(dec("50")))
	assert.Nil(t, got.MarkPrice)
	assert.True(t, got.ClosedAt.IsZero())
	assert.True(t, got.OpenedAt.Equal(baseTime))
}

func TestFindTradeByID_Absent(t *testing.T) {
	repo := setupTestDB(t)
	got, err := repo.FindTradeByID(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateTrade(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	trade := newTrade(domain.Long)
	id, err := repo.CreateTrade(ctx, trade)
	require.NoError(t, err)

	trade.Status = domain.StatusClosed
	trade.ClosedAt = baseTime.Add(time.Hour)
	trade.Fees = dec("2.5")
	mark := dec("110")
	trade.MarkPrice = &mark
	require.NoError(t, repo.UpdateTrade(ctx, trade))

	got, err := repo.FindTradeByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.True(t, got.ClosedAt.Equal(baseTime.Add(time.Hour)))
	assert.True(t, got.Fees.Equal(dec("2.5")))
	require.NotNil(t, got.MarkPrice)
	assert.True(t, got.MarkPrice.Equal(dec("110")))

	missing := newTrade(domain.Long)
	missing.ID = 9999
	assert.ErrorIs(t, repo.UpdateTrade(ctx, missing), ports.ErrNotFound)
}

func TestFindOpenTradesByInstrument_OrderAndFilter(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	later := newTrade(domain.Long)
	later.OpenedAt = baseTime.Add(time.Hour)
	laterID, err := repo.CreateTrade(ctx, later)
	require.NoError(t, err)

	earlier := newTrade(domain.Short)
	earlierID, err := repo.CreateTrade(ctx, earlier)
	require.NoError(t, err)

	closed := newTrade(domain.Long)
	closed.Status = domain.StatusClosed
	closed.ClosedAt = baseTime.Add(2 * time.Hour)
	_, err = repo.CreateTrade(ctx, closed)
	require.NoError(t, err)

	other := newTrade(domain.Long)
	other.Instrument.Ticker = "BTCUSDT"
	_, err = repo.CreateTrade(ctx, other)
	require.NoError(t, err)

	got, err := repo.FindOpenTradesByInstrument(ctx, testInstr)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, earlierID, got[0].ID, "oldest open trade first")
	assert.Equal(t, laterID, got[1].ID)
}

func TestFillOrdering_TimeThenInsertion(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.CreateTrade(ctx, newTrade(domain.Long))
	require.NoError(t, err)

	// Same timestamp: insertion order must break the tie.
	tie := baseTime.Add(time.Minute)
	firstAtTie, err := repo.CreateTransaction(ctx, newFill(id, domain.Buy, "2", tie))
	require.NoError(t, err)
	secondAtTie, err := repo.CreateTransaction(ctx, newFill(id, domain.Buy, "3", tie))
	require.NoError(t, err)
	earliest, err := repo.CreateTransaction(ctx, newFill(id, domain.Buy, "1", baseTime))
	require.NoError(t, err)

	fills, err := repo.FindTransactionsByTradeID(ctx, id)
	require.NoError(t, err)
	require.Len(t, fills, 3)
	assert.Equal(t, earliest, fills[0].ID)
	assert.Equal(t, firstAtTie, fills[1].ID)
	assert.Equal(t, secondAtTie, fills[2].ID)
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.CreateTrade(ctx, newTrade(domain.Short))
	require.NoError(t, err)

	venuePnL := dec("-3.2")
	txn := newFill(id, domain.Sell, "8", baseTime)
	txn.VenuePnL = &venuePnL
	txn.Notes = "opening short"
	txnID, err := repo.CreateTransaction(ctx, txn)
	require.NoError(t, err)

	got, err := repo.FindTransactionByID(ctx, txnID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.TradeID)
	assert.Equal(t, domain.Sell, got.Action)
	assert.True(t, got.Quantity.Equal(dec("8")))
	require.NotNil(t, got.VenuePnL)
	assert.True(t, got.VenuePnL.Equal(dec("-3.2")))
	assert.Equal(t, "opening short", got.Notes)

	got.Quantity = dec("6")
	require.NoError(t, repo.UpdateTransaction(ctx, got))
	got, err = repo.FindTransactionByID(ctx, txnID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(dec("6")))

	require.NoError(t, repo.DeleteTransaction(ctx, txnID))
	got, err = repo.FindTransactionByID(ctx, txnID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, repo.DeleteTransaction(ctx, txnID), ports.ErrNotFound)
}

func TestDeleteTrade_CascadesTagsAndFills(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.CreateTrade(ctx, newTrade(domain.Long))
	require.NoError(t, err)
	txnID, err := repo.CreateTransaction(ctx, newFill(id, domain.Buy, "5", baseTime))
	require.NoError(t, err)
	require.NoError(t, repo.AddTradeTag(ctx, id, "breakout"))
	require.NoError(t, repo.AddTradeAttachment(ctx, id, "/charts/entry.png"))

	require.NoError(t, repo.DeleteTrade(ctx, id))

	tags, err := repo.FindTagsByTradeID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, tags)
	paths, err := repo.FindAttachmentsByTradeID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, paths)
	fill, err := repo.FindTransactionByID(ctx, txnID)
	require.NoError(t, err)
	assert.Nil(t, fill)
}

func TestAddTradeTag_DuplicateIgnored(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.CreateTrade(ctx, newTrade(domain.Long))
	require.NoError(t, err)
	require.NoError(t, repo.AddTradeTag(ctx, id, "breakout"))
	require.NoError(t, repo.AddTradeTag(ctx, id, "breakout"))
	require.NoError(t, repo.AddTradeTag(ctx, id, "a-plus"))

	tags, err := repo.FindTagsByTradeID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-plus", "breakout"}, tags)
}

func TestTouchLatestActivity(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	a, err := repo.CreateTrade(ctx, newTrade(domain.Long))
	require.NoError(t, err)
	b, err := repo.CreateTrade(ctx, newTrade(domain.Long))
	require.NoError(t, err)
	short, err := repo.CreateTrade(ctx, newTrade(domain.Short))
	require.NoError(t, err)

	stamp := baseTime.Add(3 * time.Hour)
	require.NoError(t, repo.TouchLatestActivity(ctx, testInstr, domain.Long, stamp))

	for _, id := range []int64{a, b} {
		got, err := repo.FindTradeByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.LatestActivityAt.Equal(stamp), "trade %d", id)
	}
	got, err := repo.FindTradeByID(ctx, short)
	require.NoError(t, err)
	assert.True(t, got.LatestActivityAt.Equal(baseTime), "opposite direction untouched")
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.RunInTransaction(ctx, func(store ports.Store) error {
		if _, err := store.CreateTrade(ctx, newTrade(domain.Long)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	trades, err := repo.FindAllTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunInTransaction_CommitsAndJoins(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var tradeID int64
	err := repo.RunInTransaction(ctx, func(store ports.Store) error {
		id, err := store.CreateTrade(ctx, newTrade(domain.Long))
		if err != nil {
			return err
		}
		tradeID = id
		// Nested call joins the open transaction instead of deadlocking on
		// the single connection.
		return store.RunInTransaction(ctx, func(inner ports.Store) error {
			_, err := inner.CreateTransaction(ctx, newFill(id, domain.Buy, "5", baseTime))
			return err
		})
	})
	require.NoError(t, err)

	fills, err := repo.FindTransactionsByTradeID(ctx, tradeID)
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}
