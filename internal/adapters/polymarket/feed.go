package polymarket

// feed.go — adapter del feed websocket del CLOB de Polymarket.
//
// El mismo socket trae tres formas de mensaje: batches de price_change,
// snapshots completos de book, y mensajes tipados legacy. Además el framing
// varía (objeto suelto o array de objetos) y el servidor contesta los PING
// aplicativos con texto plano. El decode prueba cada forma en orden de
// prioridad fijo: price-changes → book snapshot → mensaje tipado legacy.

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"

	"github.com/alejandrodnm/lagbot/internal/adapters/stream"
	"github.com/alejandrodnm/lagbot/internal/domain"
)

const defaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// Feed convierte el wire format del CLOB en eventos normalizados.
type Feed struct {
	conn   *stream.Conn
	events chan<- domain.FeedEvent
	tokens []string
	auth   string // token del canal user; vacío = solo canal market
}

// NewFeed crea el feed para los token ids dados. wsURL vacío usa producción.
func NewFeed(wsURL string, tokens []string, auth string, events chan<- domain.FeedEvent) *Feed {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	f := &Feed{events: events, tokens: tokens, auth: auth}
	f.conn = stream.New(stream.Config{
		Name:        "polymarket",
		URL:         wsURL,
		PingPayload: []byte("PING"),
		OnMessage:   f.handleMessage,
		OnFatal: func(err error) {
			events <- domain.FeedFatalEvent{Feed: "polymarket", Err: err}
		},
	})
	return f
}

// Start registra las suscripciones y conecta. Se registran antes del dial:
// quedan memorizadas en la conexión aunque el primer intento falle, y se
// reenvían solas tras cada (re)conexión.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.conn.Subscribe("market", subscribeMarket{AssetsIDs: f.tokens, Type: "market"}); err != nil {
		return err
	}
	if f.auth != "" {
		if err := f.conn.Subscribe("user", subscribeUser{Type: "subscribe", Channel: "user", Auth: f.auth}); err != nil {
			return err
		}
	}
	return f.conn.Connect(ctx)
}

// Stop cierra el feed y suprime reconexiones.
func (f *Feed) Stop() {
	f.conn.Disconnect()
}

// subscribeMarket es el subscribe del canal de market data.
type subscribeMarket struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// subscribeUser es el subscribe autenticado del canal user.
type subscribeUser struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Auth    string `json:"auth"`
}

func (f *Feed) handleMessage(msg []byte) {
	for _, ev := range decodeMessage(msg) {
		f.events <- ev
	}
}

// decodeMessage desenvuelve el framing (objeto o array) y decodifica cada
// item a cero o más eventos. Las respuestas de control en texto plano
// (PONG, strings de error) se reconocen por el primer byte y se ignoran
// sin intentar parsear JSON.
func decodeMessage(msg []byte) []domain.FeedEvent {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		slog.Debug("polymarket: control reply ignored", "payload", truncateRaw(trimmed, 32))
		return nil
	}

	items := []json.RawMessage{trimmed}
	if trimmed[0] == '[' {
		items = nil
		if err := json.Unmarshal(trimmed, &items); err != nil {
			slog.Warn("polymarket: dropping malformed batch", "err", err)
			return nil
		}
	}

	var out []domain.FeedEvent
	for _, item := range items {
		out = append(out, decodeItem(item)...)
	}
	return out
}

// decodeItem prueba las formas conocidas en orden de prioridad fijo y
// devuelve la variante tipada, o nada si el mensaje no se reconoce.
func decodeItem(raw json.RawMessage) []domain.FeedEvent {
	if evs, ok := decodePriceChanges(raw); ok {
		return evs
	}
	if ev, ok := decodeBook(raw); ok {
		return []domain.FeedEvent{ev}
	}
	if evs, ok := decodeLegacy(raw); ok {
		return evs
	}
	slog.Debug("polymarket: unrecognized message shape, dropped", "payload", truncateRaw(raw, 64))
	return nil
}

// priceChangeMsg es un batch de cambios de precio de tokens.
type priceChangeMsg struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	TimestampRaw json.RawMessage `json:"timestamp"`
	Changes      []struct {
		AssetID string      `json:"asset_id"`
		Price   json.Number `json:"price"`
	} `json:"price_changes"`
}

func decodePriceChanges(raw json.RawMessage) ([]domain.FeedEvent, bool) {
	var msg priceChangeMsg
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Changes) == 0 {
		return nil, false
	}

	ts := parseTimestampMs(msg.TimestampRaw)
	out := make([]domain.FeedEvent, 0, len(msg.Changes))
	for _, ch := range msg.Changes {
		price, err := ch.Price.Float64()
		if err != nil || ch.AssetID == "" {
			slog.Warn("polymarket: dropping price change", "asset_id", ch.AssetID, "price", ch.Price)
			continue
		}
		out = append(out, domain.PriceChangeEvent{
			TokenID:     ch.AssetID,
			Price:       NormalizeSharePrice(price),
			TimestampMs: ts,
		})
	}
	return out, true
}

// bookMsg es un snapshot completo del libro de un token.
type bookMsg struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	TimestampRaw json.RawMessage `json:"timestamp"`
	Bids         []wireLevel     `json:"bids"`
	Asks         []wireLevel     `json:"asks"`
}

type wireLevel struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

func decodeBook(raw json.RawMessage) (domain.FeedEvent, bool) {
	var msg bookMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false
	}
	if msg.AssetID == "" || (len(msg.Bids) == 0 && len(msg.Asks) == 0) {
		return nil, false
	}

	book := domain.OrderBook{
		TokenID:     msg.AssetID,
		Bids:        parseLevels(msg.Bids),
		Asks:        parseLevels(msg.Asks),
		TimestampMs: parseTimestampMs(msg.TimestampRaw),
	}
	// Invariantes de orden del book: bids descendente, asks ascendente.
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return domain.BookEvent{Book: book}, true
}

// legacyMsg cubre los mensajes tipados antiguos que siguen llegando por el
// mismo socket. Solo last_trade_price produce un evento; el resto se
// reconoce y descarta.
type legacyMsg struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Price        json.Number     `json:"price"`
	TimestampRaw json.RawMessage `json:"timestamp"`
}

func decodeLegacy(raw json.RawMessage) ([]domain.FeedEvent, bool) {
	var msg legacyMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.EventType == "" {
		return nil, false
	}

	switch msg.EventType {
	case "last_trade_price":
		price, err := msg.Price.Float64()
		if err != nil || msg.AssetID == "" {
			return nil, true
		}
		return []domain.FeedEvent{domain.PriceChangeEvent{
			TokenID:     msg.AssetID,
			Price:       NormalizeSharePrice(price),
			TimestampMs: parseTimestampMs(msg.TimestampRaw),
		}}, true
	default:
		// Tipado pero sin interés (tick_size_change, etc.).
		return nil, true
	}
}

// NormalizeSharePrice normaliza un precio de token a probabilidad [0,1]
// infiriendo la escala por magnitud: ≤1 ya está normalizado, ≤100 viene en
// centavos, y el resto en micro-unidades.
func NormalizeSharePrice(v float64) float64 {
	switch {
	case v <= 0:
		return 0
	case v <= 1:
		return v
	case v <= 100:
		return v / 100
	default:
		return v / 1e6
	}
}

// parseLevels convierte niveles del wire a BookEntry, descartando los
// inválidos.
func parseLevels(levels []wireLevel) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(levels))
	for _, l := range levels {
		price, perr := l.Price.Float64()
		size, serr := l.Size.Float64()
		if perr != nil || serr != nil || price <= 0 || size < 0 {
			continue
		}
		out = append(out, domain.BookEntry{Price: NormalizeSharePrice(price), Size: size})
	}
	return out
}

// parseTimestampMs tolera timestamps como número o como string.
func parseTimestampMs(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	s := string(bytes.Trim(bytes.TrimSpace(raw), `"`))
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

func truncateRaw(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
