package notify_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lagbot/internal/adapters/notify"
	"github.com/alejandrodnm/lagbot/internal/domain"
)

func makeClosedTrade(pnl float64) domain.TradeRecord {
	return domain.TradeRecord{
		ID:               "t1",
		TimestampMs:      1_717_200_300_000,
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

func TestConsole_SignalDetected(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.SignalDetected(context.Background(), domain.Signal{
		Asset:       "BTC",
		Side:        domain.SideUp,
		GapPercent:  0.08,
		Confidence:  0.82,
		EntryPrice:  0.42,
		TimestampMs: 1_717_200_300_000,
		Reason:      "hard move +5.00% in 30s, UP lag gap 0.080",
	})

	out := buf.String()
	assert.Contains(t, out, "SIGNAL BTC UP")
	assert.Contains(t, out, "gap=0.080")
	assert.Contains(t, out, "hard move")
}

func TestConsole_TradeClosed(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.TradeClosed(context.Background(), makeClosedTrade(21.43))
	assert.Contains(t, buf.String(), "TRADE WIN BTC UP")
	assert.Contains(t, buf.String(), "gap_closed")

	buf.Reset()
	n.TradeClosed(context.Background(), makeClosedTrade(-10))
	assert.Contains(t, buf.String(), "TRADE LOSS")
}

func TestConsole_BacktestReportWithTable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	result := domain.BacktestResult{
		RunID:        "run-1",
		Windows:      96,
		TotalTrades:  1,
		WinRate:      1,
		StartBalance: 1000,
		FinalBalance: 1021.43,
		TotalPnL:     21.43,
	}

	err := n.BacktestReport(result, []domain.TradeRecord{makeClosedTrade(21.43)})
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "gap_closed")
	assert.Contains(t, out, "Total PnL")
}

func TestConsole_BacktestReportCompact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.BacktestReport(domain.BacktestResult{RunID: "run-2"}, []domain.TradeRecord{makeClosedTrade(5)})
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run-2")
	// Sin tabla: la fila del trade no aparece.
	assert.NotContains(t, out, "0.420")
}

func TestSlog_EmitsStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	n := notify.NewSlog()
	n.SignalDetected(context.Background(), domain.Signal{Asset: "BTC", Side: domain.SideUp, GapPercent: 0.08})
	n.TradeClosed(context.Background(), makeClosedTrade(4))
	require.NoError(t, n.BacktestReport(domain.BacktestResult{RunID: "r1", Windows: 4}, nil))

	out := buf.String()
	assert.Contains(t, out, `"msg":"signal detected"`)
	assert.Contains(t, out, `"asset":"BTC"`)
	assert.Contains(t, out, `"msg":"trade closed"`)
	assert.Contains(t, out, `"msg":"backtest report"`)
	assert.Contains(t, out, `"run_id":"r1"`)
}
