package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/adapters/memory"
	"tradeledger/internal/domain"
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

func seedTrade(t *testing.T, store *memory.Store, dir domain.Direction, openedAt time.Time, fills ...*domain.Transaction) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateTrade(ctx, &domain.Trade{
		Instrument: testInstr,
		Direction:  dir,
		Status:     domain.StatusOpen,
		OpenedAt:   openedAt,
		Fees:       decimal.Zero,
	})
	require.NoError(t, err)
	for _, f := range fills {
		f.TradeID = id
		_, err := store.CreateTransaction(ctx, f)
		require.NoError(t, err)
	}
	return id
}

func buyFill(qty string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		Action:     domain.Buy,
		Quantity:   dec(qty),
		Price:      dec("100"),
		Fees:       decimal.Zero,
		ExecutedAt: at,
	}
}

func sellFill(qty string, at time.Time) *domain.Transaction {
	f := buyFill(qty, at)
	f.Action = domain.Sell
	return f
}

func TestSnapshot_Flat(t *testing.T) {
	r, err := NewReader(&mockLogger{})
	require.NoError(t, err)

	snap, err := r.Snapshot(context.Background(), memory.NewStore(), testInstr)
	require.NoError(t, err)
	assert.True(t, snap.IsFlat())
	assert.True(t, snap.NetPosition.IsZero())
}

func TestSnapshot_MixedDirections(t *testing.T) {
	store := memory.NewStore()
	longID := seedTrade(t, store, domain.Long, baseTime,
		buyFill("10", baseTime), sellFill("4", baseTime.Add(time.Minute)))
	shortID := seedTrade(t, store, domain.Short, baseTime.Add(time.Hour),
		sellFill("2", baseTime.Add(time.Hour)))

	r, err := NewReader(&mockLogger{})
	require.NoError(t, err)
	snap, err := r.Snapshot(context.Background(), store, testInstr)
	require.NoError(t, err)

	require.Len(t, snap.OpenTrades, 2)
	assert.Equal(t, longID, snap.OpenTrades[0].TradeID)
	assert.True(t, snap.OpenTrades[0].Size.Equal(dec("6")))
	assert.Equal(t, shortID, snap.OpenTrades[1].TradeID)
	assert.True(t, snap.OpenTrades[1].Size.Equal(dec("2")))
	// 6 long - 2 short.
	assert.True(t, snap.NetPosition.Equal(dec("4")), "net: %s", snap.NetPosition)
	assert.True(t, snap.AvailableToClose(domain.Long).Equal(dec("6")))
	assert.True(t, snap.AvailableToClose(domain.Short).Equal(dec("2")))
}

func TestSnapshot_SkipsFullyConsumedTrades(t *testing.T) {
	store := memory.NewStore()
	seedTrade(t, store, domain.Long, baseTime,
		buyFill("10", baseTime), sellFill("10", baseTime.Add(time.Minute)))

	r, err := NewReader(&mockLogger{})
	require.NoError(t, err)
	snap, err := r.Snapshot(context.Background(), store, testInstr)
	require.NoError(t, err)
	assert.True(t, snap.IsFlat())
}

func TestSnapshot_IgnoresOtherInstruments(t *testing.T) {
	store := memory.NewStore()
	other := domain.Instrument{Ticker: "BTCUSDT", AssetClass: "crypto", Exchange: "BINANCE"}
	ctx := context.Background()
	id, err := store.CreateTrade(ctx, &domain.Trade{
		Instrument: other,
		Direction:  domain.Long,
		Status:     domain.StatusOpen,
		OpenedAt:   baseTime,
		Fees:       decimal.Zero,
	})
	require.NoError(t, err)
	f := buyFill("3", baseTime)
	f.TradeID = id
	_, err = store.CreateTransaction(ctx, f)
	require.NoError(t, err)

	r, err := NewReader(&mockLogger{})
	require.NoError(t, err)
	snap, err := r.Snapshot(ctx, store, testInstr)
	require.NoError(t, err)
	assert.True(t, snap.IsFlat())
}

func TestOpenSize(t *testing.T) {
	fills := []*domain.Transaction{
		buyFill("10", baseTime),
		sellFill("4", baseTime.Add(time.Minute)),
	}
	assert.True(t, OpenSize(domain.Long, fills).Equal(dec("6")))
	// For a short trade the sells are entries.
	assert.True(t, OpenSize(domain.Short, fills).Equal(dec("-6")))
	assert.True(t, OpenSize(domain.Long, nil).IsZero())
}
