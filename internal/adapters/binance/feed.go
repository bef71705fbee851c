package binance

// feed.go — adapter del feed spot de Binance.
//
// Se suscribe al combined stream de aggTrade de todos los símbolos
// trackeados (la suscripción va en el path, no en un mensaje) y convierte
// cada ejecución a un PriceTick normalizado.

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/lagbot/internal/adapters/stream"
	"github.com/alejandrodnm/lagbot/internal/domain"
)

const defaultWSBase = "wss://stream.binance.com:9443"

// aggTradeSuffix es el canal de trades agregados por símbolo.
const aggTradeSuffix = "@aggTrade"

// Feed convierte el wire format de Binance en TickEvents.
type Feed struct {
	conn   *stream.Conn
	events chan<- domain.FeedEvent
	assets map[string]string // símbolo (mayúsculas) → asset
}

// combinedFrame es el framing del combined stream: el payload real va en data.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// aggTradeMsg es una ejecución agregada. El precio llega como string decimal
// y hay dos timestamps: E (event time) y T (trade time). Usamos T y caemos
// a E si falta.
type aggTradeMsg struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// New crea el feed para los símbolos dados, con la misma orientación que
// el config (asset → símbolo, p.ej. "BTC" → "BTCUSDT"). wsBase vacío usa
// el endpoint de producción.
func New(wsBase string, symbols map[string]string, events chan<- domain.FeedEvent) *Feed {
	if wsBase == "" {
		wsBase = defaultWSBase
	}

	assets := make(map[string]string, len(symbols))
	for asset, symbol := range symbols {
		assets[strings.ToUpper(symbol)] = asset
	}

	f := &Feed{events: events, assets: assets}
	f.conn = stream.New(stream.Config{
		Name:      "binance",
		URL:       combinedStreamURL(wsBase, symbols),
		OnMessage: f.handleMessage,
		OnFatal: func(err error) {
			events <- domain.FeedFatalEvent{Feed: "binance", Err: err}
		},
	})
	return f
}

// combinedStreamURL construye el path del combined stream: cada símbolo
// trackeado en minúsculas con el sufijo de canal fijo, unidos por "/".
func combinedStreamURL(wsBase string, symbols map[string]string) string {
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		streams = append(streams, strings.ToLower(symbol)+aggTradeSuffix)
	}
	sort.Strings(streams)
	return wsBase + "/stream?streams=" + strings.Join(streams, "/")
}

// Start abre la conexión del feed.
func (f *Feed) Start(ctx context.Context) error {
	return f.conn.Connect(ctx)
}

// Stop cierra el feed y suprime reconexiones.
func (f *Feed) Stop() {
	f.conn.Disconnect()
}

// handleMessage parsea un frame crudo. Los payloads malformados se loguean
// y descartan: un mensaje malo no para el stream.
func (f *Feed) handleMessage(msg []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Warn("binance: dropping non-JSON payload", "err", err, "len", len(msg))
		return
	}

	data := frame.Data
	if len(data) == 0 {
		// Frame sin envolver (stream simple): el trade es el mensaje entero.
		data = msg
	}

	var trade aggTradeMsg
	if err := json.Unmarshal(data, &trade); err != nil {
		slog.Warn("binance: dropping malformed trade", "err", err)
		return
	}
	if trade.EventType != "aggTrade" {
		return
	}

	tick, ok := f.toTick(trade)
	if !ok {
		return
	}
	f.events <- domain.TickEvent{Tick: tick}
}

// toTick normaliza una ejecución a PriceTick.
func (f *Feed) toTick(trade aggTradeMsg) (domain.PriceTick, bool) {
	asset, ok := f.assets[strings.ToUpper(trade.Symbol)]
	if !ok {
		slog.Debug("binance: trade for untracked symbol", "symbol", trade.Symbol)
		return domain.PriceTick{}, false
	}

	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || price <= 0 {
		slog.Warn("binance: dropping trade with bad price", "symbol", trade.Symbol, "price", trade.Price)
		return domain.PriceTick{}, false
	}

	ts := trade.TradeTime
	if ts == 0 {
		ts = trade.EventTime
	}
	return domain.PriceTick{Asset: asset, Price: price, TimestampMs: ts}, true
}
