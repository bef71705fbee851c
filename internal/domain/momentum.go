package domain

import (
	"math"
	"time"
)

// momentum.go — matemática pura del detector de momentum-lag.
//
// La idea: el spot de crypto se mueve fuerte y rápido ("hard move") y el
// mercado binario de predicción tarda en repricear. Mientras la probabilidad
// implícita del lado contrario siga inflada respecto al fair value de 0.50,
// hay un gap explotable comprando el lado que debería repricear al alza.

const (
	// FairValue es el punto medio de un mercado binario sin información.
	FairValue = 0.50
	// probLagThreshold es el mínimo de probabilidad implícita "rezagada"
	// del lado contrario para considerar que el mercado no ha reaccionado.
	probLagThreshold = 0.55
	// maxConfidence es el tope del score heurístico.
	maxConfidence = 0.99
	// fastMoveMax es la duración máxima de un move para el bonus de velocidad.
	fastMoveMax = 30 * time.Second
)

// MoveConfig parametriza la detección de hard moves.
type MoveConfig struct {
	MinSamples       int           // mínimo de ticks para evaluar (default 30)
	Lookback         int           // ventana corta de cambio porcentual (default 60 ticks)
	MoveThreshold    float64       // |cambio| mínimo para hard move (p.ej. 0.02 = 2%)
	MoveWindow       time.Duration // el move debe completarse dentro de esta duración
	SqueezeLookback  int           // ticks previos al move para medir contracción
	SqueezeThreshold float64       // band width máximo para considerar squeeze
}

// DefaultMoveConfig devuelve los parámetros de detección por defecto.
func DefaultMoveConfig() MoveConfig {
	return MoveConfig{
		MinSamples:       30,
		Lookback:         60,
		MoveThreshold:    0.02,
		MoveWindow:       2 * time.Minute,
		SqueezeLookback:  60,
		SqueezeThreshold: 0.003,
	}
}

// Move es el resultado de analizar la historia reciente de precios.
type Move struct {
	Percent  float64       // cambio porcentual sobre el lookback (signo = dirección)
	Duration time.Duration // cuánto tardó el tramo que completó el umbral
	Squeeze  bool          // hubo contracción de volatilidad antes del move
	Detected bool          // |Percent| >= threshold dentro de MoveWindow
}

// Fast devuelve true si el move se completó en menos de 30 segundos.
func (m Move) Fast() bool {
	return m.Detected && m.Duration < fastMoveMax
}

// DetectHardMove analiza la ventana corta de la historia y clasifica si hubo
// un hard move. Con menos de MinSamples ticks no se evalúa nada.
//
// El squeeze previo es un modificador de fuerza de señal (sube la confianza),
// nunca una condición de entrada.
func DetectHardMove(ticks []PriceTick, cfg MoveConfig) Move {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 60
	}
	if len(ticks) < cfg.MinSamples {
		return Move{}
	}

	n := cfg.Lookback
	if n > len(ticks) {
		n = len(ticks)
	}
	window := ticks[len(ticks)-n:]
	first := window[0]
	last := window[len(window)-1]
	if first.Price <= 0 {
		return Move{}
	}

	m := Move{
		Percent:  (last.Price - first.Price) / first.Price,
		Duration: time.Duration(last.TimestampMs-first.TimestampMs) * time.Millisecond,
	}

	if math.Abs(m.Percent) >= cfg.MoveThreshold && cfg.MoveThreshold > 0 {
		m.Duration = moveSpan(window, last, cfg.MoveThreshold)
		m.Detected = m.Duration <= cfg.MoveWindow || cfg.MoveWindow <= 0
	}
	if m.Detected {
		m.Squeeze = volatilitySqueeze(ticks[:len(ticks)-n], cfg)
	}
	return m
}

// moveSpan devuelve la duración del tramo más corto que termina en el último
// tick y ya supera el umbral de cambio. Es la medida de "qué tan rápido"
// ocurrió el move, independiente del tamaño del lookback.
func moveSpan(window []PriceTick, last PriceTick, threshold float64) time.Duration {
	for i := len(window) - 2; i >= 0; i-- {
		base := window[i].Price
		if base <= 0 {
			continue
		}
		if math.Abs((last.Price-base)/base) >= threshold {
			return time.Duration(last.TimestampMs-window[i].TimestampMs) * time.Millisecond
		}
	}
	return time.Duration(last.TimestampMs-window[0].TimestampMs) * time.Millisecond
}

// volatilitySqueeze mide si el periodo inmediatamente anterior al move tuvo
// una contracción de varianza: band width = (max-min)/media por debajo del
// umbral configurado.
func volatilitySqueeze(prior []PriceTick, cfg MoveConfig) bool {
	if cfg.SqueezeLookback <= 0 || cfg.SqueezeThreshold <= 0 {
		return false
	}
	if len(prior) > cfg.SqueezeLookback {
		prior = prior[len(prior)-cfg.SqueezeLookback:]
	}
	// Con menos de 10 muestras previas el band width no es significativo.
	if len(prior) < 10 {
		return false
	}

	lo, hi, sum := math.MaxFloat64, 0.0, 0.0
	for _, t := range prior {
		if t.Price < lo {
			lo = t.Price
		}
		if t.Price > hi {
			hi = t.Price
		}
		sum += t.Price
	}
	mean := sum / float64(len(prior))
	if mean <= 0 {
		return false
	}
	return (hi-lo)/mean < cfg.SqueezeThreshold
}

// ComputeGap calcula el gap explotable entre el move del spot y las
// probabilidades implícitas del mercado binario (fair value 0.50).
//
// Si el spot subió y el lado DOWN sigue por encima de 0.55, el mercado va
// rezagado: gap = downProb - 0.50, lado sugerido UP. Regla simétrica para
// bajadas con el lado UP. Si ninguna condición asimétrica se cumple, no hay
// gap (0, SideNone).
func ComputeGap(movePercent, upProb, downProb float64) (float64, Side) {
	switch {
	case movePercent > 0 && downProb > probLagThreshold:
		return downProb - FairValue, SideUp
	case movePercent < 0 && upProb > probLagThreshold:
		return upProb - FairValue, SideDown
	default:
		return 0, SideNone
	}
}

// Confidence calcula el score heurístico de una señal.
//
// Base 0.5, más hasta +0.2 proporcional a gap/0.10, más hasta +0.15
// proporcional a |move|/0.05, +0.1 si el move fue rápido (<30s), +0.1 si
// hubo squeeze previo. Tope 0.99.
//
// Es un ranking relativo entre señales, no una calibración de win rate.
func Confidence(gap float64, move Move) float64 {
	c := 0.5
	c += math.Min(0.2, 0.2*gap/0.10)
	c += math.Min(0.15, 0.15*math.Abs(move.Percent)/0.05)
	if move.Fast() {
		c += 0.1
	}
	if move.Squeeze {
		c += 0.1
	}
	if c > maxConfidence {
		c = maxConfidence
	}
	return c
}
