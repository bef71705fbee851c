package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

type recordingNotifier struct {
	signals []domain.Signal
	trades  []domain.TradeRecord
}

func (n *recordingNotifier) SignalDetected(_ context.Context, sig domain.Signal) {
	n.signals = append(n.signals, sig)
}

func (n *recordingNotifier) TradeClosed(_ context.Context, trade domain.TradeRecord) {
	n.trades = append(n.trades, trade)
}

func (n *recordingNotifier) BacktestReport(domain.BacktestResult, []domain.TradeRecord) error {
	return nil
}

type recordingStorage struct {
	saved []domain.TradeRecord
}

func (s *recordingStorage) SaveTrade(_ context.Context, _ string, trade domain.TradeRecord) error {
	s.saved = append(s.saved, trade)
	return nil
}

func (s *recordingStorage) SaveBacktestRun(context.Context, domain.BacktestResult) error {
	return nil
}

func (s *recordingStorage) Close() error { return nil }

var testMarket = TrackedMarket{
	Asset:       "BTC",
	ConditionID: "btc-live",
	UpTokenID:   "tok-up",
	DownTokenID: "tok-down",
}

func sessionConfig() SessionConfig {
	return SessionConfig{
		Runner:         DefaultConfig(),
		Markets:        []TrackedMarket{testMarket},
		InitialBalance: 1000,
	}
}

// bookEvent arma un snapshot con midpoint mid y liquidez de sobra.
func bookEvent(tokenID string, mid float64, tsMs int64) domain.BookEvent {
	return domain.BookEvent{Book: domain.OrderBook{
		TokenID:     tokenID,
		Bids:        []domain.BookEntry{{Price: mid - 0.01, Size: 2000}},
		Asks:        []domain.BookEntry{{Price: mid + 0.01, Size: 2000}},
		TimestampMs: tsMs,
	}}
}

// feedLagScenario llena el canal con books iniciales (UP 0.42, DOWN 0.58) y
// un spot que sube 0.1% por tick: el estado rezagado que abre posición UP.
func feedLagScenario(events chan<- domain.FeedEvent, baseMs int64, ticks int) {
	events <- bookEvent("tok-up", 0.42, baseMs+1000)
	events <- bookEvent("tok-down", 0.58, baseMs+1000)

	price := 100.0
	for i := 0; i < ticks; i++ {
		events <- domain.TickEvent{Tick: domain.PriceTick{
			Asset:       "BTC",
			Price:       price,
			TimestampMs: baseMs + int64(i)*1000,
		}}
		price *= 1.001
	}
}

// baseMs alineado al cuarto de hora para que la ventana arranque limpia.
var windowStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSessionOpensAndClosesOnGapCollapse(t *testing.T) {
	events := make(chan domain.FeedEvent, 256)
	notifier := &recordingNotifier{}
	store := &recordingStorage{}
	s := NewSession(sessionConfig(), events, store, notifier)

	baseMs := windowStart.UnixMilli()
	feedLagScenario(events, baseMs, 60)
	// El mercado repricea: el lado DOWN colapsa y el gap se cierra.
	events <- domain.PriceChangeEvent{TokenID: "tok-down", Price: 0.45, TimestampMs: baseMs + 61_000}
	close(events)

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, notifier.signals, 1)
	assert.Equal(t, domain.SideUp, notifier.signals[0].Side)
	assert.InDelta(t, 0.08, notifier.signals[0].GapPercent, 1e-9)

	require.Len(t, notifier.trades, 1)
	assert.Equal(t, domain.ExitGapClosed, notifier.trades[0].ExitReason)
	assert.Len(t, store.saved, 1)
}

func TestSessionGatesLiquidityOnSuggestedSide(t *testing.T) {
	events := make(chan domain.FeedEvent, 256)
	notifier := &recordingNotifier{}
	s := NewSession(sessionConfig(), events, nil, notifier)

	baseMs := windowStart.UnixMilli()
	// Book UP raquítico y book DOWN gordo: la liquidez que cuenta es la del
	// lado que se compraría (UP), así que el gordo del otro lado no rescata
	// la señal.
	events <- domain.BookEvent{Book: domain.OrderBook{
		TokenID:     "tok-up",
		Bids:        []domain.BookEntry{{Price: 0.41, Size: 200}},
		Asks:        []domain.BookEntry{{Price: 0.43, Size: 200}},
		TimestampMs: baseMs + 1000,
	}}
	events <- bookEvent("tok-down", 0.58, baseMs+1000)

	price := 100.0
	for i := 0; i < 60; i++ {
		events <- domain.TickEvent{Tick: domain.PriceTick{
			Asset:       "BTC",
			Price:       price,
			TimestampMs: baseMs + int64(i)*1000,
		}}
		price *= 1.001
	}
	close(events)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, notifier.signals)
	assert.Empty(t, notifier.trades)
}

func TestSessionRotatesWindowAndForceSettles(t *testing.T) {
	events := make(chan domain.FeedEvent, 256)
	notifier := &recordingNotifier{}
	s := NewSession(sessionConfig(), events, nil, notifier)

	baseMs := windowStart.UnixMilli()
	feedLagScenario(events, baseMs, 60)
	// Primer evento de la siguiente ventana: la posición viva se liquida
	// con la resolución inferida (el spot cerró por encima del anchor).
	events <- domain.TickEvent{Tick: domain.PriceTick{
		Asset:       "BTC",
		Price:       106,
		TimestampMs: baseMs + (15 * time.Minute).Milliseconds(),
	}}
	close(events)

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, notifier.trades, 1)
	trade := notifier.trades[0]
	assert.Equal(t, domain.ExitMarketResolved, trade.ExitReason)
	assert.InDelta(t, 0.95, trade.ExitPrice, 1e-9)
	assert.Greater(t, s.Balance(), 1000.0)
}

func TestSessionIgnoresMarketsWithoutBothProbs(t *testing.T) {
	events := make(chan domain.FeedEvent, 256)
	notifier := &recordingNotifier{}
	s := NewSession(sessionConfig(), events, nil, notifier)

	baseMs := windowStart.UnixMilli()
	// Solo llega el book del lado UP: sin el par completo no hay gap.
	events <- bookEvent("tok-up", 0.42, baseMs+1000)
	price := 100.0
	for i := 0; i < 60; i++ {
		events <- domain.TickEvent{Tick: domain.PriceTick{
			Asset: "BTC", Price: price, TimestampMs: baseMs + int64(i)*1000,
		}}
		price *= 1.001
	}
	close(events)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, notifier.signals)
	assert.Empty(t, notifier.trades)
}

func TestSessionStopsOnFatalFeed(t *testing.T) {
	events := make(chan domain.FeedEvent, 16)
	s := NewSession(sessionConfig(), events, nil, nil)

	cause := errors.New("max reconnect attempts reached")
	events <- domain.FeedFatalEvent{Feed: "binance", Err: cause}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	events := make(chan domain.FeedEvent)
	s := NewSession(sessionConfig(), events, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
