package engine

// runner.go — strategy runner y position ledger de una ventana de mercado.
//
// Compartido por live y backtest: el mismo runner decide entradas, salidas
// y liquidación forzada, venga el stream de un feed real o del simulador.

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

const (
	// resolutionGuard es el margen antes del fin de ventana en el que una
	// posición abierta se cierra forzada a precio de mercado.
	resolutionGuard = 60 * time.Second

	// Precios fijos de liquidación al cierre de ventana. Es una
	// simplificación deliberada del settlement binario (no un precio
	// continuo): cambiarla alteraría silenciosamente el performance
	// reportado, así que se preserva tal cual.
	defaultSettleWin  = 0.95
	defaultSettleLoss = 0.05
)

// Config parametriza el runner.
type Config struct {
	GapThreshold     float64           // gap mínimo para emitir señal
	ExitGapThreshold float64           // gap por debajo del cual se cierra la posición
	PositionSizePct  float64           // fracción del balance por posición
	MinLiquidity     float64           // liquidez mínima del book para aceptar una señal
	MaxHoldTime      time.Duration     // tiempo máximo en posición
	Move             domain.MoveConfig // parámetros del detector

	SettleWinPrice  float64 // precio de settlement si la posición acertó el lado
	SettleLossPrice float64 // precio de settlement si falló
}

// DefaultConfig devuelve la configuración por defecto del runner.
func DefaultConfig() Config {
	return Config{
		GapThreshold:     0.05,
		ExitGapThreshold: 0.02,
		PositionSizePct:  0.05,
		MinLiquidity:     500,
		MaxHoldTime:      5 * time.Minute,
		Move:             domain.DefaultMoveConfig(),
		SettleWinPrice:   defaultSettleWin,
		SettleLossPrice:  defaultSettleLoss,
	}
}

// TickInput es el estado de mercado que ve el runner en un tick.
type TickInput struct {
	History       []domain.PriceTick // snapshot de la historia del asset
	UpProb        float64            // probabilidad implícita del lado UP
	DownProb      float64            // probabilidad implícita del lado DOWN
	UpLiquidity   float64            // liquidez del book del token UP
	DownLiquidity float64            // liquidez del book del token DOWN
	NowMs         int64
}

// Runner mantiene como máximo una posición abierta por ventana y produce
// exactamente un TradeRecord por ventana que llegó a señal de entrada.
type Runner struct {
	cfg     Config
	window  domain.MarketWindow
	balance float64
	open    *domain.Position
	trade   *domain.TradeRecord
}

// NewRunner crea el runner de una ventana con el balance disponible.
func NewRunner(cfg Config, window domain.MarketWindow, balance float64) *Runner {
	if cfg.SettleWinPrice <= 0 {
		cfg.SettleWinPrice = defaultSettleWin
	}
	if cfg.SettleLossPrice <= 0 {
		cfg.SettleLossPrice = defaultSettleLoss
	}
	return &Runner{cfg: cfg, window: window, balance: balance}
}

// Balance devuelve el balance actual (descontado el cost basis si hay
// posición abierta).
func (r *Runner) Balance() float64 { return r.balance }

// HasOpenPosition devuelve true si hay posición viva.
func (r *Runner) HasOpenPosition() bool { return r.open != nil }

// Trade devuelve el trade de la ventana si ya cerró, nil si no.
func (r *Runner) Trade() *domain.TradeRecord { return r.trade }

// Window devuelve la ventana del runner.
func (r *Runner) Window() domain.MarketWindow { return r.window }

// Evaluate procesa un tick. Devuelve la señal en el tick que abre posición
// y el trade en el tick que la cierra; nil en los demás.
func (r *Runner) Evaluate(in TickInput) (*domain.Signal, *domain.TradeRecord) {
	if r.trade != nil {
		// Un trade por ventana: después de cerrar no se reevalúa.
		return nil, nil
	}
	if r.open != nil {
		return nil, r.maybeExit(in)
	}
	return r.maybeEnter(in), nil
}

// maybeEnter evalúa el detector y abre posición si hay señal aceptable.
func (r *Runner) maybeEnter(in TickInput) *domain.Signal {
	move := domain.DetectHardMove(in.History, r.cfg.Move)
	if !move.Detected {
		return nil
	}

	gap, side := domain.ComputeGap(move.Percent, in.UpProb, in.DownProb)
	if side == domain.SideNone || gap < r.cfg.GapThreshold {
		return nil
	}

	entryPrice := sidePrice(side, in)
	if entryPrice <= 0 || entryPrice >= 1 {
		return nil
	}
	// La liquidez que importa es la del token que se va a comprar: el otro
	// lado no respalda la entrada.
	liquidity := sideLiquidity(side, in)
	if r.cfg.MinLiquidity > 0 && liquidity < r.cfg.MinLiquidity {
		slog.Debug("runner: signal rejected, thin book",
			"asset", r.window.Asset,
			"side", side.String(),
			"liquidity", liquidity,
			"min", r.cfg.MinLiquidity,
		)
		return nil
	}

	sig := domain.Signal{
		Asset:       r.window.Asset,
		Side:        side,
		GapPercent:  gap,
		Confidence:  domain.Confidence(gap, move),
		EntryPrice:  entryPrice,
		Liquidity:   liquidity,
		TimestampMs: in.NowMs,
		Reason: fmt.Sprintf("hard move %+.2f%% in %s, %s lag gap %.3f",
			move.Percent*100, move.Duration.Round(time.Second), side, gap),
	}

	size := r.balance * r.cfg.PositionSizePct / entryPrice
	if size <= 0 {
		return nil
	}
	costBasis := size * entryPrice
	r.balance -= costBasis
	r.open = &domain.Position{
		ID:               uuid.New().String(),
		Asset:            r.window.Asset,
		ConditionID:      r.window.ConditionID,
		Side:             side,
		EntryPrice:       entryPrice,
		EntryTimestampMs: in.NowMs,
		Size:             size,
		CostBasis:        costBasis,
		SignalGap:        gap,
		SignalConfidence: sig.Confidence,
	}
	return &sig
}

// maybeExit evalúa las condiciones de salida. Cuando varias disparan en el
// mismo tick la precedencia es fija: gap cerrado → tiempo máximo en
// posición → ventana a punto de resolver.
func (r *Runner) maybeExit(in TickInput) *domain.TradeRecord {
	exitPrice := sidePrice(r.open.Side, in)
	if exitPrice <= 0 {
		return nil
	}

	var reason domain.ExitReason
	switch {
	case r.currentGap(in) < r.cfg.ExitGapThreshold:
		reason = domain.ExitGapClosed
	case in.NowMs-r.open.EntryTimestampMs >= r.cfg.MaxHoldTime.Milliseconds():
		reason = domain.ExitMaxHoldTime
	case r.window.EndTime.UnixMilli()-in.NowMs <= resolutionGuard.Milliseconds():
		reason = domain.ExitMarketResolved
	default:
		return nil
	}
	return r.close(exitPrice, reason, in.NowMs)
}

// ForceSettle liquida una posición que siga abierta al final de la ventana
// usando la resolución: lado correcto cobra a precio alto fijo, lado
// incorrecto a precio bajo fijo.
func (r *Runner) ForceSettle(outcome domain.Outcome, nowMs int64) *domain.TradeRecord {
	if r.open == nil {
		return nil
	}
	w := r.window
	w.Outcome = outcome

	exitPrice := r.cfg.SettleLossPrice
	if w.WonBy(r.open.Side) {
		exitPrice = r.cfg.SettleWinPrice
	}
	return r.close(exitPrice, domain.ExitMarketResolved, nowMs)
}

func (r *Runner) close(exitPrice float64, reason domain.ExitReason, nowMs int64) *domain.TradeRecord {
	trade := r.open.Close(exitPrice, reason, nowMs)
	r.balance += trade.Proceeds
	r.open = nil
	r.trade = &trade
	return &trade
}

// currentGap mide el gap vivo de la posición: la desviación de la
// probabilidad del lado rezagado (el contrario al comprado) sobre el fair
// value. Cuando el mercado ya repriceó, ese gap colapsa.
func (r *Runner) currentGap(in TickInput) float64 {
	if r.open.Side == domain.SideUp {
		return in.DownProb - domain.FairValue
	}
	return in.UpProb - domain.FairValue
}

// sidePrice devuelve el precio actual del token del lado dado.
func sidePrice(side domain.Side, in TickInput) float64 {
	if side == domain.SideUp {
		return in.UpProb
	}
	return in.DownProb
}

// sideLiquidity devuelve la liquidez del book del token del lado dado.
func sideLiquidity(side domain.Side, in TickInput) float64 {
	if side == domain.SideUp {
		return in.UpLiquidity
	}
	return in.DownLiquidity
}
