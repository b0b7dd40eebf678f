package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionHelpers(t *testing.T) {
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, 1, Long.Sign())
	assert.Equal(t, -1, Short.Sign())
	assert.Equal(t, Buy, Long.EntrySide())
	assert.Equal(t, Sell, Short.EntrySide())
	assert.Equal(t, Long, DirectionForEntry(Buy))
	assert.Equal(t, Short, DirectionForEntry(Sell))
	assert.Equal(t, Sell, Buy.Opposite())
}

func TestInstrumentString(t *testing.T) {
	instr := Instrument{Ticker: "ETHUSDT", AssetClass: "crypto", Exchange: "BINANCE"}
	assert.Equal(t, "ETHUSDT/crypto@BINANCE", instr.String())
}

func TestTransactionIsEntry(t *testing.T) {
	buy := &Transaction{Action: Buy}
	sell := &Transaction{Action: Sell}
	assert.True(t, buy.IsEntry(Long))
	assert.False(t, buy.IsEntry(Short))
	assert.True(t, sell.IsEntry(Short))
	assert.False(t, sell.IsEntry(Long))
}

func TestSortForMatching(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	txs := []*Transaction{
		{ID: 3, ExecutedAt: base.Add(time.Minute)},
		{ID: 2, ExecutedAt: base.Add(time.Minute)},
		{ID: 1, ExecutedAt: base.Add(2 * time.Minute)},
		{ID: 4, ExecutedAt: base},
	}
	SortForMatching(txs)

	var ids []int64
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	// Time ascending, id breaking the tie at base+1m.
	assert.Equal(t, []int64{4, 2, 3, 1}, ids)
}

func TestOverCloseErrorMessage(t *testing.T) {
	req, _ := decimal.NewFromString("20")
	avail, _ := decimal.NewFromString("10")
	err := NewOverCloseError("ETHUSDT", req, avail)

	assert.Equal(t, "cannot close 20 ETHUSDT: only 10 available", err.Error())
	assert.True(t, err.Requested.Equal(req))
	assert.True(t, err.Available.Equal(avail))

	var verr *ValidationError
	require.ErrorAs(t, error(err), &verr)
}

func TestTradeIsOpen(t *testing.T) {
	assert.True(t, (&Trade{Status: StatusOpen}).IsOpen())
	assert.False(t, (&Trade{Status: StatusClosed}).IsOpen())
}
