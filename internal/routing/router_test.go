package routing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/intent"
)

// mockLogger swallows all output.
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

var testInstr = domain.Instrument{Ticker: "ETHUSDT", AssetClass: "crypto", Exchange: "BINANCE"}

func snapshot(openTrades ...domain.OpenTradeSize) domain.PositionSnapshot {
	snap := domain.PositionSnapshot{Instrument: testInstr, NetPosition: decimal.Zero}
	for _, ot := range openTrades {
		snap.OpenTrades = append(snap.OpenTrades, ot)
		signed := ot.Size
		if ot.Direction == domain.Short {
			signed = signed.Neg()
		}
		snap.NetPosition = snap.NetPosition.Add(signed)
	}
	return snap
}

func open(id int64, dir domain.Direction, size string) domain.OpenTradeSize {
	return domain.OpenTradeSize{TradeID: id, Direction: dir, Size: dec(size)}
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(&mockLogger{})
	require.NoError(t, err)
	return r
}

func request(label string, action domain.OrderSide, qty string, snap domain.PositionSnapshot) Request {
	return Request{
		Instrument: testInstr,
		Action:     action,
		Quantity:   dec(qty),
		Intent:     intent.Parse(label),
		Snapshot:   snap,
	}
}

func TestDecide_FlatOpensNew(t *testing.T) {
	r := newTestRouter(t)

	d, err := r.Decide(context.Background(), Interactive, request("buy", "", "10", snapshot()))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Long, d.Direction)
	assert.Equal(t, domain.Buy, d.Action)
	assert.False(t, d.IsClose)

	d, err = r.Decide(context.Background(), Interactive, request("sell", "", "10", snapshot()))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Short, d.Direction)
}

func TestDecide_ExplicitOpeningAlwaysOpens(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"))

	d, err := r.Decide(context.Background(), Interactive, request("buy to open", "", "5", snap))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Long, d.Direction)

	// Even with a long position open, "sell to open" starts a short trade
	// rather than scaling the long out.
	d, err = r.Decide(context.Background(), Interactive, request("sell to open", "", "5", snap))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Short, d.Direction)
}

func TestDecide_LiquidationInfersSideFromNetPosition(t *testing.T) {
	r := newTestRouter(t)

	// Net short 8: liquidation buys it back.
	snap := snapshot(open(3, domain.Short, "8"))
	d, err := r.Decide(context.Background(), Interactive,
		request("Market Order Liquidation", "", "8", snap))
	require.NoError(t, err)
	assert.Equal(t, domain.Buy, d.Action)
	assert.Equal(t, int64(3), d.TradeID)
	assert.True(t, d.IsClose)
	assert.True(t, d.IsLiquidation)

	// Net long: liquidation sells.
	snap = snapshot(open(4, domain.Long, "5"))
	d, err = r.Decide(context.Background(), Interactive,
		request("liquidation", "", "5", snap))
	require.NoError(t, err)
	assert.Equal(t, domain.Sell, d.Action)
	assert.Equal(t, int64(4), d.TradeID)
}

func TestDecide_LiquidationKeepsExplicitSide(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(3, domain.Short, "8"))

	d, err := r.Decide(context.Background(), Interactive,
		request("liquidation", domain.Buy, "8", snap))
	require.NoError(t, err)
	assert.Equal(t, domain.Buy, d.Action)
	assert.True(t, d.IsLiquidation)
}

func TestDecide_LiquidationWhileFlatRejected(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.Decide(context.Background(), Interactive,
		request("liquidation", "", "5", snapshot()))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecide_BareSellAgainstLongCloses(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"))

	d, err := r.Decide(context.Background(), Interactive, request("sell", "", "10", snap))
	require.NoError(t, err)
	assert.False(t, d.OpensNew)
	assert.True(t, d.IsClose)
	assert.Equal(t, int64(1), d.TradeID)
	assert.Equal(t, domain.Long, d.Direction)
}

func TestDecide_ClosePrefersExactCover(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"), open(2, domain.Long, "4"))

	// 4 exactly covers trade 2 even though trade 1 is larger.
	d, err := r.Decide(context.Background(), Interactive, request("sell to close", "", "4", snap))
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.TradeID)

	// No exact cover: fall back to the largest trade.
	d, err = r.Decide(context.Background(), Interactive, request("sell to close", "", "6", snap))
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TradeID)
}

func TestDecide_ScaleInAttachesToMostRecent(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"), open(2, domain.Long, "4"))

	d, err := r.Decide(context.Background(), Interactive, request("buy", "", "3", snap))
	require.NoError(t, err)
	assert.False(t, d.OpensNew)
	assert.Equal(t, int64(2), d.TradeID)
}

func TestDecide_ReversalNeedsStatedDirection(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"))

	// "short" states a direction opposing the net long: flip, open new.
	d, err := r.Decide(context.Background(), Interactive, request("short", "", "15", snap))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Short, d.Direction)

	// A bare "sell" with no stated direction is an ordinary close and is
	// later held to the over-close validation instead.
	d, err = r.Decide(context.Background(), Interactive, request("sell", "", "15", snap))
	require.NoError(t, err)
	assert.True(t, d.IsClose)
	assert.Equal(t, int64(1), d.TradeID)
}

func TestDecide_UnresolvableSideRejected(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.Decide(context.Background(), Interactive, request("???", "", "5", snapshot()))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecideImport_CloseConsumesOldest(t *testing.T) {
	r := newTestRouter(t)
	// Snapshot entries are in open-time order; trade 1 is oldest.
	snap := snapshot(open(1, domain.Long, "10"), open(2, domain.Long, "4"))

	d, err := r.Decide(context.Background(), Import, request("sell", "", "6", snap))
	require.NoError(t, err)
	assert.True(t, d.IsClose)
	assert.Equal(t, int64(1), d.TradeID)
}

func TestDecideImport_SameDirectionAttachesToMostRecent(t *testing.T) {
	r := newTestRouter(t)
	snap := snapshot(open(1, domain.Long, "10"), open(2, domain.Long, "4"))

	d, err := r.Decide(context.Background(), Import, request("buy", "", "6", snap))
	require.NoError(t, err)
	assert.False(t, d.OpensNew)
	assert.Equal(t, int64(2), d.TradeID)
}

func TestDecideImport_OrphanCloseBecomesNewTrade(t *testing.T) {
	r := newTestRouter(t)

	d, err := r.Decide(context.Background(), Import, request("sell to close", "", "6", snapshot()))
	require.NoError(t, err)
	assert.True(t, d.OpensNew)
	assert.Equal(t, domain.Short, d.Direction)
}

func TestValidateClose_OverCloseRejected(t *testing.T) {
	v := NewValidator()
	snap := snapshot(open(1, domain.Long, "10"))

	err := v.ValidateClose(dec("20"), snap, domain.Long)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "10 available")
	assert.True(t, verr.Requested.Equal(dec("20")))
	assert.True(t, verr.Available.Equal(dec("10")))

	assert.NoError(t, v.ValidateClose(dec("10"), snap, domain.Long))
	// Dust above the available amount stays inside the tolerance band.
	assert.NoError(t, v.ValidateClose(dec("10.000000001"), snap, domain.Long))
}

func TestValidateLiquidation_ChecksAbsoluteNet(t *testing.T) {
	v := NewValidator()
	snap := snapshot(open(1, domain.Short, "8"))

	assert.NoError(t, v.ValidateLiquidation(dec("8"), snap))
	err := v.ValidateLiquidation(dec("9"), snap)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidateFill(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateFill(dec("1"), dec("100"), decimal.Zero))
	assert.Error(t, v.ValidateFill(decimal.Zero, dec("100"), decimal.Zero))
	assert.Error(t, v.ValidateFill(dec("-1"), dec("100"), decimal.Zero))
	assert.Error(t, v.ValidateFill(dec("1"), decimal.Zero, decimal.Zero))
	assert.Error(t, v.ValidateFill(dec("1"), dec("100"), dec("-0.5")))
}
