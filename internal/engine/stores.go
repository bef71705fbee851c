package engine

import (
	"time"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

// stores.go — estado de mercado del dispatcher.
//
// Los dos stores los muta únicamente el loop de eventos (un solo goroutine),
// así que no llevan locks: la mutación siempre es secuencial respecto a los
// eventos que la disparan.

// HistoryStore mantiene el buffer de ticks de cada asset.
type HistoryStore struct {
	maxPoints int
	window    time.Duration
	byAsset   map[string]*domain.PriceHistory
}

// NewHistoryStore crea el store. Valores <= 0 usan los defaults del domain.
func NewHistoryStore(maxPoints int, window time.Duration) *HistoryStore {
	return &HistoryStore{
		maxPoints: maxPoints,
		window:    window,
		byAsset:   make(map[string]*domain.PriceHistory),
	}
}

// Apply añade un tick al buffer de su asset, creándolo si es el primero.
func (s *HistoryStore) Apply(t domain.PriceTick) {
	h, ok := s.byAsset[t.Asset]
	if !ok {
		h = domain.NewPriceHistory(t.Asset, s.maxPoints, s.window)
		s.byAsset[t.Asset] = h
	}
	h.Append(t)
}

// Snapshot devuelve una copia read-only de la historia de un asset.
func (s *HistoryStore) Snapshot(asset string) []domain.PriceTick {
	h, ok := s.byAsset[asset]
	if !ok {
		return nil
	}
	return h.Snapshot()
}

// Len devuelve el número de ticks retenidos para un asset.
func (s *HistoryStore) Len(asset string) int {
	h, ok := s.byAsset[asset]
	if !ok {
		return 0
	}
	return h.Len()
}

// LastPrice devuelve el último precio conocido de un asset.
func (s *HistoryStore) LastPrice(asset string) (float64, bool) {
	h, ok := s.byAsset[asset]
	if !ok {
		return 0, false
	}
	last, ok := h.Last()
	if !ok {
		return 0, false
	}
	return last.Price, true
}

// BookStore mantiene el último book por token y el último precio (ya
// normalizado a probabilidad) visto por token, venga de un price_change o
// del midpoint de un snapshot.
type BookStore struct {
	books  map[string]domain.OrderBook
	prices map[string]float64
}

// NewBookStore crea el store vacío.
func NewBookStore() *BookStore {
	return &BookStore{
		books:  make(map[string]domain.OrderBook),
		prices: make(map[string]float64),
	}
}

// ApplyBook reemplaza entero el book del token (sin merge incremental) y
// refresca el precio con el midpoint si el book lo tiene.
func (s *BookStore) ApplyBook(b domain.OrderBook) {
	s.books[b.TokenID] = b
	if mid := b.Midpoint(); mid > 0 {
		s.prices[b.TokenID] = mid
	}
}

// ApplyPrice actualiza el último precio del token.
func (s *BookStore) ApplyPrice(tokenID string, price float64) {
	if price <= 0 {
		return
	}
	s.prices[tokenID] = price
}

// Price devuelve la última probabilidad implícita del token.
func (s *BookStore) Price(tokenID string) (float64, bool) {
	p, ok := s.prices[tokenID]
	return p, ok
}

// Liquidity devuelve la liquidez nominal del último book del token,
// 0 si nunca llegó snapshot.
func (s *BookStore) Liquidity(tokenID string) float64 {
	b, ok := s.books[tokenID]
	if !ok {
		return 0
	}
	return b.TotalLiquidity()
}
