package polymarket

import (
	"testing"

	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSharePrice(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.42, 0.42},    // ya normalizado
		{42, 0.42},      // centavos
		{420000, 0.42},  // micro-unidades
		{1, 1},          // borde: ≤1 se queda igual
		{100, 1},        // borde: centavos
		{0, 0},
		{-3, 0},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, NormalizeSharePrice(tc.in), 1e-9, "input %v", tc.in)
	}
}

func TestDecode_PriceChangeBatch(t *testing.T) {
	msg := []byte(`{
		"event_type": "price_change",
		"market": "0xcond",
		"timestamp": "1700000000123",
		"price_changes": [
			{"asset_id": "tok-up", "price": "0.62"},
			{"asset_id": "tok-down", "price": "38"}
		]
	}`)

	evs := decodeMessage(msg)
	require.Len(t, evs, 2)

	up := evs[0].(domain.PriceChangeEvent)
	assert.Equal(t, "tok-up", up.TokenID)
	assert.InDelta(t, 0.62, up.Price, 1e-9)
	assert.Equal(t, int64(1700000000123), up.TimestampMs)

	down := evs[1].(domain.PriceChangeEvent)
	assert.InDelta(t, 0.38, down.Price, 1e-9) // 38 centavos normalizados
}

func TestDecode_BookSnapshot(t *testing.T) {
	msg := []byte(`{
		"event_type": "book",
		"asset_id": "tok-up",
		"market": "0xcond",
		"timestamp": 1700000000500,
		"bids": [{"price": "0.40", "size": "100"}, {"price": "0.41", "size": "50"}],
		"asks": [{"price": "0.45", "size": "80"}, {"price": "0.43", "size": "20"}]
	}`)

	evs := decodeMessage(msg)
	require.Len(t, evs, 1)
	book := evs[0].(domain.BookEvent).Book

	assert.Equal(t, "tok-up", book.TokenID)
	// Orden forzado: bids descendente, asks ascendente.
	assert.Equal(t, 0.41, book.BestBid())
	assert.Equal(t, 0.43, book.BestAsk())
	assert.Equal(t, int64(1700000000500), book.TimestampMs)
	// liquidez = 0.40×100 + 0.41×50 + 0.45×80 + 0.43×20
	assert.InDelta(t, 40+20.5+36+8.6, book.TotalLiquidity(), 1e-9)
}

func TestDecode_ArrayFraming(t *testing.T) {
	msg := []byte(`[
		{"event_type": "price_change", "price_changes": [{"asset_id": "a", "price": "0.5"}]},
		{"event_type": "book", "asset_id": "b", "bids": [{"price": "0.3", "size": "10"}], "asks": []}
	]`)

	evs := decodeMessage(msg)
	require.Len(t, evs, 2)
	assert.IsType(t, domain.PriceChangeEvent{}, evs[0])
	assert.IsType(t, domain.BookEvent{}, evs[1])
}

func TestDecode_LegacyLastTradePrice(t *testing.T) {
	msg := []byte(`{"event_type": "last_trade_price", "asset_id": "tok-up", "price": "650000", "timestamp": "1700000000000"}`)

	evs := decodeMessage(msg)
	require.Len(t, evs, 1)
	ev := evs[0].(domain.PriceChangeEvent)
	assert.InDelta(t, 0.65, ev.Price, 1e-9) // micro-unidades normalizadas
}

func TestDecode_PlainTextControlReplies(t *testing.T) {
	assert.Empty(t, decodeMessage([]byte("PONG")))
	assert.Empty(t, decodeMessage([]byte("INVALID COMMAND")))
	assert.Empty(t, decodeMessage([]byte("")))
	assert.Empty(t, decodeMessage([]byte("   ")))
}

func TestDecode_UnrecognizedShapesDropped(t *testing.T) {
	assert.Empty(t, decodeMessage([]byte(`{"foo": "bar"}`)))
	assert.Empty(t, decodeMessage([]byte(`{"event_type": "tick_size_change", "asset_id": "x"}`)))
	assert.Empty(t, decodeMessage([]byte(`[not valid json`)))
}

func TestDecode_PriorityPriceChangesOverBook(t *testing.T) {
	// Un mensaje ambiguo con price_changes Y bids debe decodificarse como
	// price change: ese es el orden de prioridad fijo.
	msg := []byte(`{
		"price_changes": [{"asset_id": "a", "price": "0.5"}],
		"asset_id": "a",
		"bids": [{"price": "0.3", "size": "10"}]
	}`)

	evs := decodeMessage(msg)
	require.Len(t, evs, 1)
	assert.IsType(t, domain.PriceChangeEvent{}, evs[0])
}
