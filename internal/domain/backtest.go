package domain

import (
	"math"
	"sort"
	"time"
)

// sharpePeriodsPerYear anualiza el Sharpe para ventanas de 15 minutos:
// 96 ventanas por día de trading × 252 días.
const sharpePeriodsPerYear = 252 * 96

// minTradesForSharpe es el mínimo de trades para que el Sharpe tenga sentido.
const minTradesForSharpe = 10

// BacktestResult es el agregado de todos los TradeRecords de un run.
type BacktestResult struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Windows        int // ventanas simuladas en total
	WindowsTraded  int // ventanas que llegaron a señal de entrada
	StartBalance   float64
	FinalBalance   float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	TotalPnL       float64
	AvgPnL         float64
	MaxDrawdown    float64 // fracción de caída desde el high-water mark
	SharpeRatio    float64 // 0 con menos de 10 trades
	SignalAccuracy float64 // fracción de trades con PnL > 0 (proxy de acierto direccional)
	AvgHoldMinutes float64
}

// Aggregate reduce la secuencia completa de trades a las métricas del run.
//
// Los trades pueden llegar en cualquier orden (las ventanas se procesan en
// paralelo); aquí se reordenan por timestamp antes de recorrer el balance,
// así la agregación es conmutativa respecto al orden de merge.
func Aggregate(trades []TradeRecord, startBalance float64, windows int) BacktestResult {
	res := BacktestResult{
		Windows:       windows,
		StartBalance:  startBalance,
		FinalBalance:  startBalance,
		WindowsTraded: len(trades),
		TotalTrades:   len(trades),
	}
	if len(trades) == 0 {
		return res
	}

	ordered := make([]TradeRecord, len(trades))
	copy(ordered, trades)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TimestampMs < ordered[j].TimestampMs
	})

	balance := startBalance
	peak := startBalance
	var holdSum float64
	for _, t := range ordered {
		if t.Won() {
			res.WinningTrades++
		} else {
			res.LosingTrades++
		}
		res.TotalPnL += t.PnL
		holdSum += t.HoldTimeMinutes

		balance += t.PnL
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak; dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}
	}

	n := float64(len(ordered))
	res.FinalBalance = balance
	res.WinRate = float64(res.WinningTrades) / n
	res.AvgPnL = res.TotalPnL / n
	res.SignalAccuracy = res.WinRate
	res.AvgHoldMinutes = holdSum / n
	res.SharpeRatio = sharpeRatio(ordered)
	return res
}

// sharpeRatio calcula el Sharpe anualizado sobre los retornos porcentuales
// por trade. Con menos de 10 trades devuelve 0: la varianza muestral no es
// fiable con tan pocos puntos.
func sharpeRatio(trades []TradeRecord) float64 {
	if len(trades) < minTradesForSharpe {
		return 0
	}
	n := float64(len(trades))

	var mean float64
	for _, t := range trades {
		mean += t.PnLPercent
	}
	mean /= n

	var variance float64
	for _, t := range trades {
		d := t.PnLPercent - mean
		variance += d * d
	}
	variance /= n

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(sharpePeriodsPerYear)
}
