package domain

import "time"

// Outcome es la resolución de una ventana de mercado binario.
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

// MarketWindow es una instancia discreta de mercado binario de 15 minutos
// ("¿sube o baja BTC en este cuarto de hora?"). Sobre cada ventana se abre
// como máximo una posición, y toda posición abierta debe resolverse dentro
// de la ventana.
type MarketWindow struct {
	Asset       string
	ConditionID string
	UpTokenID   string
	DownTokenID string
	StartTime   time.Time
	EndTime     time.Time

	// Outcome queda vacío hasta que el path de la ventana termina; es la
	// resolución usada para liquidar una posición que siga abierta al final.
	Outcome Outcome
}

// Duration devuelve la duración de la ventana.
func (w MarketWindow) Duration() time.Duration {
	return w.EndTime.Sub(w.StartTime)
}

// Contains devuelve true si el timestamp (ms) cae dentro de la ventana.
func (w MarketWindow) Contains(tsMs int64) bool {
	t := time.UnixMilli(tsMs)
	return !t.Before(w.StartTime) && t.Before(w.EndTime)
}

// TokenFor devuelve el token id del lado dado.
func (w MarketWindow) TokenFor(side Side) string {
	switch side {
	case SideUp:
		return w.UpTokenID
	case SideDown:
		return w.DownTokenID
	default:
		return ""
	}
}

// WonBy devuelve true si el lado dado coincide con la resolución.
func (w MarketWindow) WonBy(side Side) bool {
	return (side == SideUp && w.Outcome == OutcomeUp) ||
		(side == SideDown && w.Outcome == OutcomeDown)
}
