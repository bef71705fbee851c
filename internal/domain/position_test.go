package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Close(t *testing.T) {
	pos := Position{
		ID:               "p1",
		Asset:            "BTC",
		ConditionID:      "0xabc",
		Side:             SideUp,
		EntryPrice:       0.40,
		EntryTimestampMs: 0,
		Size:             250,
		CostBasis:        100,
		SignalGap:        0.08,
		SignalConfidence: 0.74,
	}

	rec := pos.Close(0.60, ExitGapClosed, 5*60*1000)

	assert.Equal(t, SideUp, rec.Side)
	assert.InDelta(t, 150.0, rec.Proceeds, 1e-9)   // 250 × 0.60
	assert.InDelta(t, 50.0, rec.PnL, 1e-9)         // 150 − 100
	assert.InDelta(t, 0.50, rec.PnLPercent, 1e-9)  // 50 / 100
	assert.InDelta(t, 5.0, rec.HoldTimeMinutes, 1e-9)
	assert.Equal(t, ExitGapClosed, rec.ExitReason)
	assert.Equal(t, 0.08, rec.SignalGap)
	assert.Equal(t, 0.74, rec.SignalConfidence)
	assert.True(t, rec.Won())
}

func TestPosition_CloseAtLoss(t *testing.T) {
	pos := Position{Side: SideDown, EntryPrice: 0.60, Size: 100, CostBasis: 60}
	rec := pos.Close(0.05, ExitMarketResolved, 14*60*1000)

	assert.InDelta(t, -55.0, rec.PnL, 1e-9)
	assert.False(t, rec.Won())
	assert.Equal(t, ExitMarketResolved, rec.ExitReason)
}

func TestMarketWindow_WonBy(t *testing.T) {
	w := MarketWindow{Outcome: OutcomeUp}
	assert.True(t, w.WonBy(SideUp))
	assert.False(t, w.WonBy(SideDown))

	unresolved := MarketWindow{}
	assert.False(t, unresolved.WonBy(SideUp))
	assert.False(t, unresolved.WonBy(SideDown))
}
