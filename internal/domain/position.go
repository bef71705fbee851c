package domain

// ExitReason clasifica por qué se cerró una posición. Cuando varias
// condiciones disparan en el mismo tick, la precedencia es:
// gap_closed → max_hold_time → market_resolved.
type ExitReason string

const (
	ExitGapClosed      ExitReason = "gap_closed"
	ExitMaxHoldTime    ExitReason = "max_hold_time"
	ExitMarketResolved ExitReason = "market_resolved"
)

// Position es una posición abierta sobre una ventana de mercado.
// Se crea con una Signal aceptada, solo la muta la evaluación de salida,
// y se reemplaza por un TradeRecord terminal al cerrar.
type Position struct {
	ID               string
	Asset            string
	ConditionID      string
	Side             Side
	EntryPrice       float64 // en (0,1): precio del token comprado
	EntryTimestampMs int64
	Size             float64 // tokens comprados, > 0
	CostBasis        float64 // Size × EntryPrice
	SignalGap        float64
	SignalConfidence float64
}

// Close liquida la posición al precio dado y devuelve el TradeRecord
// inmutable. La posición no debe tocarse después.
func (p Position) Close(exitPrice float64, reason ExitReason, tsMs int64) TradeRecord {
	proceeds := p.Size * exitPrice
	pnl := proceeds - p.CostBasis
	pnlPct := 0.0
	if p.CostBasis > 0 {
		pnlPct = pnl / p.CostBasis
	}
	return TradeRecord{
		ID:               p.ID,
		TimestampMs:      tsMs,
		Asset:            p.Asset,
		ConditionID:      p.ConditionID,
		Side:             p.Side,
		EntryPrice:       p.EntryPrice,
		ExitPrice:        exitPrice,
		Size:             p.Size,
		CostBasis:        p.CostBasis,
		Proceeds:         proceeds,
		PnL:              pnl,
		PnLPercent:       pnlPct,
		HoldTimeMinutes:  float64(tsMs-p.EntryTimestampMs) / 60_000,
		ExitReason:       reason,
		SignalGap:        p.SignalGap,
		SignalConfidence: p.SignalConfidence,
	}
}

// TradeRecord es la liquidación inmutable de una posición cerrada.
// Es el formato frontera que consumen las herramientas de reporting.
type TradeRecord struct {
	ID               string // hereda el ID de la posición
	TimestampMs      int64
	Asset            string
	ConditionID      string
	Side             Side
	EntryPrice       float64
	ExitPrice        float64
	Size             float64
	CostBasis        float64
	Proceeds         float64 // Size × ExitPrice
	PnL              float64 // Proceeds − CostBasis
	PnLPercent       float64 // PnL / CostBasis
	HoldTimeMinutes  float64
	ExitReason       ExitReason
	SignalGap        float64
	SignalConfidence float64

	// Campos de debug de ejecución, rellenados por la capa live (fuera de
	// este core) cuando aplican.
	Orphaned       bool
	OrderLatencyMs int64
	Slippage       float64
	ExpectedPrice  float64
	SpreadAtEntry  float64
}

// Won devuelve true si el trade cerró con PnL positivo.
func (t TradeRecord) Won() bool { return t.PnL > 0 }
