package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lagbot/internal/adapters/storage"
	"github.com/alejandrodnm/lagbot/internal/domain"
)

func makeTrade(id string, pnl float64, tsMs int64) domain.TradeRecord {
	return domain.TradeRecord{
		ID:               id,
		TimestampMs:      tsMs,
		Asset:            "BTC",
		ConditionID:      "btc-20240601-0000",
		Side:             domain.SideUp,
		EntryPrice:       0.42,
		ExitPrice:        0.60,
		Size:             119.05,
		CostBasis:        50,
		Proceeds:         50 + pnl,
		PnL:              pnl,
		PnLPercent:       pnl / 50,
		HoldTimeMinutes:  3.5,
		ExitReason:       domain.ExitGapClosed,
		SignalGap:        0.08,
		SignalConfidence: 0.82,
	}
}

func TestSQLiteStorage_SaveAndGetTrades(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 5, 0, 0, time.UTC).UnixMilli()

	require.NoError(t, db.SaveTrade(ctx, "run-1", makeTrade("t1", 21.43, base)))
	require.NoError(t, db.SaveTrade(ctx, "run-1", makeTrade("t2", -10, base+60_000)))
	require.NoError(t, db.SaveTrade(ctx, "run-2", makeTrade("t3", 5, base)))

	trades, err := db.GetTrades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Más recientes primero
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "t1", trades[1].ID)

	got := trades[1]
	assert.Equal(t, domain.SideUp, got.Side)
	assert.Equal(t, domain.ExitGapClosed, got.ExitReason)
	assert.InDelta(t, 21.43, got.PnL, 1e-9)
	assert.InDelta(t, 0.08, got.SignalGap, 1e-9)
	assert.Equal(t, base, got.TimestampMs)
}

func TestSQLiteStorage_SaveTradeIsIdempotent(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	trade := makeTrade("t1", 10, time.Now().UnixMilli())

	require.NoError(t, db.SaveTrade(ctx, "run-1", trade))
	require.NoError(t, db.SaveTrade(ctx, "run-1", trade))

	trades, err := db.GetTrades(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSQLiteStorage_SaveBacktestRunUpserts(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	result := domain.BacktestResult{
		RunID:        "run-1",
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
		Windows:      96,
		StartBalance: 1000,
		FinalBalance: 1080,
		TotalTrades:  12,
		WinRate:      0.75,
	}

	require.NoError(t, db.SaveBacktestRun(ctx, result))

	// Segundo save del mismo run: actualiza, no duplica ni falla.
	result.FinalBalance = 1100
	require.NoError(t, db.SaveBacktestRun(ctx, result))
}

func TestSQLiteStorage_GetTradesEmptyRun(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	trades, err := db.GetTrades(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, trades)
}
