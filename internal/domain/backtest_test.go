package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(tsMs int64, pnl, costBasis float64) TradeRecord {
	return TradeRecord{
		TimestampMs:     tsMs,
		Asset:           "BTC",
		CostBasis:       costBasis,
		PnL:             pnl,
		PnLPercent:      pnl / costBasis,
		HoldTimeMinutes: 5,
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil, 1000, 50)
	assert.Equal(t, 50, res.Windows)
	assert.Zero(t, res.TotalTrades)
	assert.Equal(t, 1000.0, res.FinalBalance)
	assert.Zero(t, res.MaxDrawdown)
	assert.Zero(t, res.SharpeRatio)
}

func TestAggregate_Basics(t *testing.T) {
	trades := []TradeRecord{
		trade(1000, +50, 100),
		trade(2000, -20, 100),
		trade(3000, +10, 100),
	}
	res := Aggregate(trades, 1000, 10)

	assert.Equal(t, 3, res.TotalTrades)
	assert.Equal(t, 2, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.InDelta(t, 2.0/3.0, res.WinRate, 1e-9)
	assert.InDelta(t, 40.0, res.TotalPnL, 1e-9)
	assert.InDelta(t, 1040.0, res.FinalBalance, 1e-9)
	assert.Equal(t, res.WinRate, res.SignalAccuracy)
	assert.InDelta(t, 5.0, res.AvgHoldMinutes, 1e-9)
	// Menos de 10 trades → sin Sharpe.
	assert.Zero(t, res.SharpeRatio)
}

func TestAggregate_MaxDrawdown(t *testing.T) {
	// Sube a 1100, cae a 880: drawdown = 220/1100 = 0.2.
	trades := []TradeRecord{
		trade(1000, +100, 100),
		trade(2000, -120, 100),
		trade(3000, -100, 100),
		trade(4000, +300, 100),
	}
	res := Aggregate(trades, 1000, 4)
	assert.InDelta(t, 0.2, res.MaxDrawdown, 1e-9)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	// La agregación debe ser conmutativa respecto al orden de merge de los
	// workers: mismos trades en distinto orden → mismas métricas.
	trades := []TradeRecord{
		trade(3000, +10, 100),
		trade(1000, +50, 100),
		trade(2000, -20, 100),
	}
	reversed := []TradeRecord{trades[2], trades[0], trades[1]}

	a := Aggregate(trades, 1000, 3)
	b := Aggregate(reversed, 1000, 3)
	assert.Equal(t, a, b)
}

func TestAggregate_Sharpe(t *testing.T) {
	var trades []TradeRecord
	for i := 0; i < 12; i++ {
		pnl := 10.0
		if i%3 == 0 {
			pnl = -5.0
		}
		trades = append(trades, trade(int64(i)*1000, pnl, 100))
	}
	res := Aggregate(trades, 1000, 12)

	require.NotZero(t, res.SharpeRatio)
	assert.False(t, math.IsNaN(res.SharpeRatio))
	assert.Greater(t, res.SharpeRatio, 0.0) // media de retornos positiva
}

func TestAggregate_SharpeZeroVariance(t *testing.T) {
	var trades []TradeRecord
	for i := 0; i < 15; i++ {
		trades = append(trades, trade(int64(i)*1000, 10, 100))
	}
	res := Aggregate(trades, 1000, 15)
	assert.Zero(t, res.SharpeRatio)
}
