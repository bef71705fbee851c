package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

// Console implementa ports.Notifier escribiendo señales, trades y reportes
// en la salida estándar.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout. Con table=false el
// reporte de backtest omite la tabla de trades y deja solo el resumen.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// SignalDetected imprime una línea por señal aceptada.
func (c *Console) SignalDetected(_ context.Context, sig domain.Signal) {
	fmt.Fprintf(c.out, "[%s] SIGNAL %s %s gap=%.3f conf=%.2f entry=%.3f — %s\n",
		formatTs(sig.TimestampMs), sig.Asset, sig.Side, sig.GapPercent,
		sig.Confidence, sig.EntryPrice, sig.Reason)
}

// TradeClosed imprime una línea por trade liquidado.
func (c *Console) TradeClosed(_ context.Context, trade domain.TradeRecord) {
	outcome := "LOSS"
	if trade.Won() {
		outcome = "WIN"
	}
	fmt.Fprintf(c.out, "[%s] TRADE %s %s %s pnl=%+.2f (%+.1f%%) %s→%s hold=%.1fm exit=%s\n",
		formatTs(trade.TimestampMs), outcome, trade.Asset, trade.Side,
		trade.PnL, trade.PnLPercent*100,
		fmt.Sprintf("%.3f", trade.EntryPrice), fmt.Sprintf("%.3f", trade.ExitPrice),
		trade.HoldTimeMinutes, trade.ExitReason)
}

// BacktestReport imprime la tabla de trades y el bloque de métricas.
func (c *Console) BacktestReport(result domain.BacktestResult, trades []domain.TradeRecord) error {
	if c.table && len(trades) > 0 {
		c.printTrades(trades)
	}
	c.printSummary(result)
	return nil
}

// printTrades imprime la tabla de trades del run.
func (c *Console) printTrades(trades []domain.TradeRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Asset", "Side", "Entry", "Exit", "PnL", "PnL %", "Hold", "Exit reason", "Gap", "Conf")

	for i, trade := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			trade.Asset,
			trade.Side.String(),
			fmt.Sprintf("%.3f", trade.EntryPrice),
			fmt.Sprintf("%.3f", trade.ExitPrice),
			fmt.Sprintf("%+.2f", trade.PnL),
			fmt.Sprintf("%+.1f%%", trade.PnLPercent*100),
			fmt.Sprintf("%.1fm", trade.HoldTimeMinutes),
			string(trade.ExitReason),
			fmt.Sprintf("%.3f", trade.SignalGap),
			fmt.Sprintf("%.2f", trade.SignalConfidence),
		)
	}

	table.Render()
}

// printSummary imprime el bloque de métricas agregadas.
func (c *Console) printSummary(r domain.BacktestResult) {
	fmt.Fprintf(c.out, "\n=== Backtest %s ===\n", r.RunID)
	fmt.Fprintf(c.out, "Windows:        %d (traded %d)\n", r.Windows, r.WindowsTraded)
	fmt.Fprintf(c.out, "Trades:         %d (W:%d L:%d, win rate %.1f%%)\n",
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate*100)
	fmt.Fprintf(c.out, "Balance:        %.2f → %.2f\n", r.StartBalance, r.FinalBalance)
	fmt.Fprintf(c.out, "Total PnL:      %+.2f (avg %+.2f/trade)\n", r.TotalPnL, r.AvgPnL)
	fmt.Fprintf(c.out, "Max drawdown:   %.1f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(c.out, "Sharpe:         %.2f\n", r.SharpeRatio)
	fmt.Fprintf(c.out, "Signal acc:     %.1f%%\n", r.SignalAccuracy*100)
	fmt.Fprintf(c.out, "Avg hold:       %.1fm\n", r.AvgHoldMinutes)
}

func formatTs(tsMs int64) string {
	return time.UnixMilli(tsMs).UTC().Format("15:04:05")
}

// Slog implementa ports.Notifier emitiendo solo logging estructurado, sin
// output formateado. Útil cuando el proceso corre como daemon.
type Slog struct{}

// NewSlog crea el notificador de solo logs.
func NewSlog() *Slog { return &Slog{} }

func (Slog) SignalDetected(_ context.Context, sig domain.Signal) {
	slog.Info("signal detected",
		"asset", sig.Asset,
		"side", sig.Side.String(),
		"gap", sig.GapPercent,
		"confidence", sig.Confidence,
		"entry_price", sig.EntryPrice,
		"reason", sig.Reason,
	)
}

func (Slog) TradeClosed(_ context.Context, trade domain.TradeRecord) {
	slog.Info("trade closed",
		"asset", trade.Asset,
		"side", trade.Side.String(),
		"pnl", trade.PnL,
		"pnl_pct", trade.PnLPercent,
		"exit_reason", string(trade.ExitReason),
		"hold_minutes", trade.HoldTimeMinutes,
	)
}

func (Slog) BacktestReport(result domain.BacktestResult, _ []domain.TradeRecord) error {
	slog.Info("backtest report",
		"run_id", result.RunID,
		"windows", result.Windows,
		"trades", result.TotalTrades,
		"win_rate", result.WinRate,
		"total_pnl", result.TotalPnL,
		"sharpe", result.SharpeRatio,
	)
	return nil
}
