package domain

// Side es el lado sugerido de un mercado binario.
type Side int

const (
	SideNone Side = iota
	SideUp
	SideDown
)

func (s Side) String() string {
	switch s {
	case SideUp:
		return "UP"
	case SideDown:
		return "DOWN"
	default:
		return "NONE"
	}
}

// Signal es una oportunidad de momentum-lag detectada: el spot ya se movió
// y el mercado de predicción todavía no lo ha reflejado.
//
// Un Signal se consume exactamente una vez: el runner abre posición con él
// o lo descarta (liquidez insuficiente, posición ya abierta).
type Signal struct {
	Asset       string
	Side        Side
	GapPercent  float64 // desviación de la probabilidad implícita respecto a 0.50
	Confidence  float64 // ranking heurístico en [0.5, 0.99] — NO es probabilidad de acierto
	EntryPrice  float64 // precio del token del lado sugerido al momento de la señal
	Liquidity   float64 // liquidez total del book del lado sugerido, en USDC
	TimestampMs int64
	Reason      string
}
