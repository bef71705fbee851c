package backtest

// simulator.go — generación de ventanas sintéticas de mercado.
//
// Cada ventana de 15 minutos lleva un path de precio spot y el par de
// probabilidades implícitas que lo persiguen con retraso. El retraso es
// deliberadamente mayor durante el episodio de hard move que en calma: esa
// asimetría es exactamente el gap que el detector explota, y hay que
// reproducirla fiel o el backtest no muestra el edge de la estrategia.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

const (
	// Convergencia por tick de la probabilidad implícita hacia su target.
	calmConvergence = 0.15
	// Durante el hard move el mercado reacciona mucho más lento.
	movingConvergence = 0.005

	// Sensibilidad del target: target_up = 0.5 + 5×move acumulado.
	targetMoveFactor = 5.0
	probFloor        = 0.01
	probCeil         = 0.99
)

// SimConfig parametriza la generación de ventanas.
type SimConfig struct {
	Assets       []string
	Start        time.Time
	End          time.Time
	WindowLength time.Duration      // default 15m
	TickInterval time.Duration      // default 1s
	BasePrices   map[string]float64 // precio spot inicial por asset
	Volatility   float64            // desviación por tick del random walk (default 0.0004)
	HardMoveProb float64            // probabilidad de episodio por ventana (default 0.4)
	Liquidity    float64            // liquidez sintética del book por ventana
	Seed         int64              // semilla del run; cada ventana deriva la suya
}

func (c *SimConfig) setDefaults() {
	if c.WindowLength <= 0 {
		c.WindowLength = 15 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Volatility <= 0 {
		c.Volatility = 0.0004
	}
	if c.HardMoveProb <= 0 {
		c.HardMoveProb = 0.4
	}
	if c.Liquidity <= 0 {
		c.Liquidity = 5000
	}
}

// Window es una ventana lista para escanear: path de spot más
// probabilidades implícitas tick a tick.
type Window struct {
	Market    domain.MarketWindow
	Ticks     []domain.PriceTick
	UpProbs   []float64
	DownProbs []float64
	Liquidity float64
}

// Simulator genera las ventanas de un run. Si history no es nil intenta
// primero el path real; su ausencia o fallo se sustituye en silencio por
// generación sintética.
type Simulator struct {
	cfg     SimConfig
	history ports.HistoryProvider
}

// NewSimulator crea el simulador. history puede ser nil (solo sintético).
func NewSimulator(cfg SimConfig, history ports.HistoryProvider) *Simulator {
	cfg.setDefaults()
	return &Simulator{cfg: cfg, history: history}
}

// Windows genera las ventanas consecutivas de cada asset en el rango.
func (s *Simulator) Windows(ctx context.Context) ([]Window, error) {
	if s.cfg.End.Sub(s.cfg.Start) < s.cfg.WindowLength {
		return nil, fmt.Errorf("backtest.Windows: range %s–%s shorter than one window",
			s.cfg.Start.Format(time.RFC3339), s.cfg.End.Format(time.RFC3339))
	}

	var out []Window
	idx := int64(0)
	for _, asset := range s.cfg.Assets {
		for start := s.cfg.Start; !start.Add(s.cfg.WindowLength).After(s.cfg.End); start = start.Add(s.cfg.WindowLength) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			// Semilla derivada por ventana: los workers pueden procesarlas
			// en cualquier orden y el run sigue siendo reproducible.
			rng := rand.New(rand.NewSource(s.cfg.Seed + idx))
			out = append(out, s.buildWindow(ctx, rng, asset, start))
			idx++
		}
	}
	return out, nil
}

// buildWindow arma una ventana: path histórico si existe, sintético si no.
func (s *Simulator) buildWindow(ctx context.Context, rng *rand.Rand, asset string, start time.Time) Window {
	end := start.Add(s.cfg.WindowLength)
	conditionID := fmt.Sprintf("%s-%s", strings.ToLower(asset), start.UTC().Format("20060102-1504"))

	market := domain.MarketWindow{
		Asset:       asset,
		ConditionID: conditionID,
		UpTokenID:   conditionID + "-up",
		DownTokenID: conditionID + "-down",
		StartTime:   start,
		EndTime:     end,
	}

	ticks, epStart, epEnd := s.sourceTicks(ctx, rng, asset, market)
	up, down := impliedProbs(ticks, epStart, epEnd)

	// La resolución la fija el signo del move acumulado final.
	market.Outcome = domain.OutcomeUp
	if len(ticks) > 1 && ticks[len(ticks)-1].Price < ticks[0].Price {
		market.Outcome = domain.OutcomeDown
	}

	return Window{
		Market:    market,
		Ticks:     ticks,
		UpProbs:   up,
		DownProbs: down,
		Liquidity: s.cfg.Liquidity,
	}
}

// sourceTicks intenta el endpoint histórico y cae a sintético. Devuelve el
// rango de ticks del episodio de hard move ([-1,-1) si no hay).
func (s *Simulator) sourceTicks(ctx context.Context, rng *rand.Rand, asset string, market domain.MarketWindow) ([]domain.PriceTick, int, int) {
	if s.history != nil {
		ticks, err := s.history.FetchPriceHistory(ctx, market.ConditionID, market.StartTime, market.EndTime)
		if err == nil && len(ticks) > 0 {
			return ticks, -1, -1
		}
		if err != nil && !errors.Is(err, ports.ErrNoHistory) {
			slog.Debug("backtest: history fetch failed, synthesizing",
				"market", market.ConditionID,
				"err", err,
			)
		}
	}
	return s.synthesize(rng, asset, market.StartTime)
}

// synthesize genera un random walk con, a veces, un episodio de hard move:
// ~40% de las ventanas, arranque aleatorio dentro de los primeros 3
// minutos, 20–60s de duración, 3–7% de magnitud, dirección aleatoria.
func (s *Simulator) synthesize(rng *rand.Rand, asset string, start time.Time) ([]domain.PriceTick, int, int) {
	n := int(s.cfg.WindowLength / s.cfg.TickInterval)
	base := s.cfg.BasePrices[asset]
	if base <= 0 {
		base = 100
	}

	epStart, epEnd := -1, -1
	drift := 0.0
	if rng.Float64() < s.cfg.HardMoveProb {
		durTicks := 20 + rng.Intn(41) // 20–60s a 1 tick/s
		maxStart := int((3 * time.Minute) / s.cfg.TickInterval)
		epStart = rng.Intn(maxStart)
		epEnd = epStart + durTicks
		magnitude := 0.03 + rng.Float64()*0.04 // 3–7%
		if rng.Intn(2) == 0 {
			magnitude = -magnitude
		}
		drift = magnitude / float64(durTicks)
	}

	ticks := make([]domain.PriceTick, n)
	price := base
	for i := 0; i < n; i++ {
		if i > 0 {
			step := rng.NormFloat64() * s.cfg.Volatility
			if i >= epStart && i < epEnd {
				step += drift
			}
			price *= 1 + step
		}
		ticks[i] = domain.PriceTick{
			Asset:       asset,
			Price:       price,
			TimestampMs: start.Add(time.Duration(i) * s.cfg.TickInterval).UnixMilli(),
		}
	}
	return ticks, epStart, epEnd
}

// impliedProbs deriva las probabilidades implícitas que persiguen al path.
//
// El target es una función del move acumulado (0.5 + 5×move, acotado) y la
// probabilidad se acerca exponencialmente a él con un factor por tick que
// durante el episodio [epStart, epEnd) es mucho menor que en calma.
func impliedProbs(ticks []domain.PriceTick, epStart, epEnd int) (up, down []float64) {
	up = make([]float64, len(ticks))
	down = make([]float64, len(ticks))
	if len(ticks) == 0 {
		return up, down
	}

	base := ticks[0].Price
	p := 0.5
	for i, t := range ticks {
		cum := 0.0
		if base > 0 {
			cum = (t.Price - base) / base
		}
		target := clampProb(0.5 + targetMoveFactor*cum)

		k := calmConvergence
		if i >= epStart && i < epEnd {
			k = movingConvergence
		}
		p = clampProb(p + (target-p)*k)

		up[i] = p
		down[i] = 1 - p
	}
	return up, down
}

func clampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}
