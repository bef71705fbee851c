package engine

// session.go — dispatcher del modo live.
//
// La sesión es la dueña explícita de todo el estado del pipeline: stores,
// runners y ledger viajan con ella en vez de vivir en handles globales. Los
// dos feeds corren concurrentes a nivel de transporte, pero sus eventos
// normalizados se mergean en un único canal y este loop es el único que
// muta estado, así que no hay locking interno.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

// TrackedMarket es un mercado binario seguido en vivo: el par de tokens de
// Polymarket ligado a un asset del feed spot.
type TrackedMarket struct {
	Asset       string
	ConditionID string
	UpTokenID   string
	DownTokenID string
}

// SessionConfig parametriza la sesión live.
type SessionConfig struct {
	Runner         Config
	Markets        []TrackedMarket
	InitialBalance float64
	WindowLength   time.Duration // default 15m
	HistoryPoints  int
	HistoryWindow  time.Duration
}

// Session consume el canal mergeado de eventos de los dos feeds y corre la
// estrategia sobre los mercados trackeados.
type Session struct {
	cfg      SessionConfig
	events   <-chan domain.FeedEvent
	hist     *HistoryStore
	books    *BookStore
	storage  ports.TradeStorage // opcional
	notifier ports.Notifier     // opcional

	runID    string
	balance  float64
	runners  map[string]*Runner // conditionID → runner de la ventana vigente
	anchors  map[string]float64 // conditionID → precio spot al abrir la ventana
	byAsset  map[string][]TrackedMarket
	byToken  map[string]TrackedMarket
}

// NewSession construye la sesión. storage y notifier pueden ser nil.
func NewSession(cfg SessionConfig, events <-chan domain.FeedEvent, storage ports.TradeStorage, notifier ports.Notifier) *Session {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = 15 * time.Minute
	}

	byAsset := make(map[string][]TrackedMarket)
	byToken := make(map[string]TrackedMarket)
	for _, m := range cfg.Markets {
		byAsset[m.Asset] = append(byAsset[m.Asset], m)
		byToken[m.UpTokenID] = m
		byToken[m.DownTokenID] = m
	}

	return &Session{
		cfg:      cfg,
		events:   events,
		hist:     NewHistoryStore(cfg.HistoryPoints, cfg.HistoryWindow),
		books:    NewBookStore(),
		storage:  storage,
		notifier: notifier,
		runID:    uuid.New().String(),
		balance:  cfg.InitialBalance,
		runners:  make(map[string]*Runner),
		anchors:  make(map[string]float64),
		byAsset:  byAsset,
		byToken:  byToken,
	}
}

// RunID identifica la sesión en el storage.
func (s *Session) RunID() string { return s.runID }

// Balance devuelve el balance actual del ledger.
func (s *Session) Balance() float64 { return s.balance }

// Run consume eventos hasta que el contexto se cancela o un feed muere.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("session started",
		"run_id", s.runID,
		"markets", len(s.cfg.Markets),
		"balance", s.balance,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// handle despacha un evento tipado. El orden de llegada es el orden de
// mutación: no hay reordenamiento ni fan-out.
func (s *Session) handle(ctx context.Context, ev domain.FeedEvent) error {
	switch e := ev.(type) {
	case domain.TickEvent:
		s.hist.Apply(e.Tick)
		for _, m := range s.byAsset[e.Tick.Asset] {
			s.evaluate(ctx, m, e.Tick.TimestampMs)
		}
	case domain.PriceChangeEvent:
		s.books.ApplyPrice(e.TokenID, e.Price)
		if m, ok := s.byToken[e.TokenID]; ok {
			s.evaluate(ctx, m, e.TimestampMs)
		}
	case domain.BookEvent:
		s.books.ApplyBook(e.Book)
		if m, ok := s.byToken[e.Book.TokenID]; ok {
			s.evaluate(ctx, m, e.Book.TimestampMs)
		}
	case domain.FeedFatalEvent:
		// Terminal para ese feed: sin él no hay estrategia que correr.
		return fmt.Errorf("session: feed %s died: %w", e.Feed, e.Err)
	}
	return nil
}

// evaluate corre el runner de la ventana vigente del mercado, rotándola si
// el reloj ya pasó al siguiente cuarto de hora.
func (s *Session) evaluate(ctx context.Context, m TrackedMarket, tsMs int64) {
	if tsMs == 0 {
		tsMs = time.Now().UnixMilli()
	}
	s.rotateWindow(ctx, m, tsMs)

	r, ok := s.runners[m.ConditionID]
	if !ok {
		return
	}

	upProb, okUp := s.books.Price(m.UpTokenID)
	downProb, okDown := s.books.Price(m.DownTokenID)
	if !okUp || !okDown {
		// Sin las dos probabilidades no hay gap que medir.
		return
	}

	in := TickInput{
		History:       s.hist.Snapshot(m.Asset),
		UpProb:        upProb,
		DownProb:      downProb,
		UpLiquidity:   s.books.Liquidity(m.UpTokenID),
		DownLiquidity: s.books.Liquidity(m.DownTokenID),
		NowMs:         tsMs,
	}

	sig, trade := r.Evaluate(in)
	if sig != nil && s.notifier != nil {
		s.notifier.SignalDetected(ctx, *sig)
	}
	if trade != nil {
		s.recordTrade(ctx, r, *trade)
	}
}

// rotateWindow liquida la ventana agotada (si quedó posición viva) y abre
// el runner de la ventana actual alineada al cuarto de hora.
func (s *Session) rotateWindow(ctx context.Context, m TrackedMarket, tsMs int64) {
	now := time.UnixMilli(tsMs).UTC()

	if r, ok := s.runners[m.ConditionID]; ok {
		if now.Before(r.Window().EndTime) {
			return
		}
		if r.HasOpenPosition() {
			outcome := s.windowOutcome(m, r.Window())
			if trade := r.ForceSettle(outcome, r.Window().EndTime.UnixMilli()); trade != nil {
				s.recordTrade(ctx, r, *trade)
			}
		}
		s.balance = r.Balance()
		delete(s.runners, m.ConditionID)
		delete(s.anchors, m.ConditionID)
	}

	start := now.Truncate(s.cfg.WindowLength)
	window := domain.MarketWindow{
		Asset:       m.Asset,
		ConditionID: m.ConditionID,
		UpTokenID:   m.UpTokenID,
		DownTokenID: m.DownTokenID,
		StartTime:   start,
		EndTime:     start.Add(s.cfg.WindowLength),
	}
	s.runners[m.ConditionID] = NewRunner(s.cfg.Runner, window, s.balance)
	if price, ok := s.hist.LastPrice(m.Asset); ok {
		s.anchors[m.ConditionID] = price
	}
	slog.Debug("session: window opened",
		"asset", m.Asset,
		"condition_id", m.ConditionID,
		"start", window.StartTime,
		"end", window.EndTime,
	)
}

// windowOutcome infiere la resolución de la ventana por el signo del move
// acumulado desde su apertura.
func (s *Session) windowOutcome(m TrackedMarket, w domain.MarketWindow) domain.Outcome {
	anchor := s.anchors[m.ConditionID]
	last, ok := s.hist.LastPrice(m.Asset)
	if !ok || anchor <= 0 || last >= anchor {
		return domain.OutcomeUp
	}
	return domain.OutcomeDown
}

func (s *Session) recordTrade(ctx context.Context, r *Runner, trade domain.TradeRecord) {
	s.balance = r.Balance()
	if s.notifier != nil {
		s.notifier.TradeClosed(ctx, trade)
	}
	if s.storage != nil {
		if err := s.storage.SaveTrade(ctx, s.runID, trade); err != nil {
			slog.Warn("session: failed to persist trade", "err", err)
		}
	}
}
