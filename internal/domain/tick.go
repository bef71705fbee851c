package domain

import "time"

// PriceTick es una ejecución puntual del feed spot de crypto.
type PriceTick struct {
	Asset       string
	Price       float64 // siempre > 0
	TimestampMs int64
}

// Time devuelve el timestamp del tick como time.Time en UTC.
func (t PriceTick) Time() time.Time {
	return time.UnixMilli(t.TimestampMs).UTC()
}

// PriceHistory es el buffer ordenado de ticks de un asset, recortado a una
// ventana temporal y a un máximo de puntos. El pipeline de ingest es el
// único escritor; los lectores reciben un snapshot copiado.
//
// El orden por timestamp es invariante del caller: el feed entrega en orden
// y los ticks fuera de orden se aceptan sin reordenar.
type PriceHistory struct {
	asset     string
	maxPoints int
	window    time.Duration
	ticks     []PriceTick
}

const (
	// DefaultHistoryPoints es el máximo de ticks retenidos por asset
	// (~10 minutos a 1 tick/segundo).
	DefaultHistoryPoints = 600
	// DefaultHistoryWindow es la ventana temporal de retención.
	DefaultHistoryWindow = 10 * time.Minute
)

// NewPriceHistory crea el buffer de un asset. Valores <= 0 usan los defaults.
func NewPriceHistory(asset string, maxPoints int, window time.Duration) *PriceHistory {
	if maxPoints <= 0 {
		maxPoints = DefaultHistoryPoints
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &PriceHistory{
		asset:     asset,
		maxPoints: maxPoints,
		window:    window,
		ticks:     make([]PriceTick, 0, maxPoints),
	}
}

// Asset devuelve el asset del buffer.
func (h *PriceHistory) Asset() string { return h.asset }

// Len devuelve el número de ticks retenidos.
func (h *PriceHistory) Len() int { return len(h.ticks) }

// Last devuelve el tick más reciente. ok=false si el buffer está vacío.
func (h *PriceHistory) Last() (PriceTick, bool) {
	if len(h.ticks) == 0 {
		return PriceTick{}, false
	}
	return h.ticks[len(h.ticks)-1], true
}

// Append añade un tick y recorta por edad (relativa al tick más nuevo)
// y por número máximo de puntos.
func (h *PriceHistory) Append(t PriceTick) {
	if t.Price <= 0 {
		return
	}
	h.ticks = append(h.ticks, t)

	cutoff := t.TimestampMs - h.window.Milliseconds()
	start := 0
	for start < len(h.ticks) && h.ticks[start].TimestampMs < cutoff {
		start++
	}
	if over := len(h.ticks) - start - h.maxPoints; over > 0 {
		start += over
	}
	if start > 0 {
		h.ticks = append(h.ticks[:0], h.ticks[start:]...)
	}
}

// Snapshot devuelve una copia read-only de los ticks para el detector.
func (h *PriceHistory) Snapshot() []PriceTick {
	out := make([]PriceTick, len(h.ticks))
	copy(out, h.ticks)
	return out
}
