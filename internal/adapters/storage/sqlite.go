package storage

// sqlite.go — persistencia de trades y runs de backtest.
//
// Estrategia:
//   - `runs`: una fila por run (live session o backtest) con los agregados.
//   - `trades`: una fila por trade cerrado, ligada a su run.
//   - Prune automático al arrancar: runs > 90d se van con sus trades.
//
// Driver pure-Go (modernc.org/sqlite), sin CGo: el binario sigue siendo
// cross-compilable.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/lagbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por run, con el resumen agregado
CREATE TABLE IF NOT EXISTS runs (
    run_id          TEXT PRIMARY KEY,
    started_at      DATETIME NOT NULL,
    finished_at     DATETIME NOT NULL,
    windows         INTEGER  NOT NULL DEFAULT 0,
    windows_traded  INTEGER  NOT NULL DEFAULT 0,
    start_balance   REAL     NOT NULL DEFAULT 0,
    final_balance   REAL     NOT NULL DEFAULT 0,
    total_trades    INTEGER  NOT NULL DEFAULT 0,
    winning_trades  INTEGER  NOT NULL DEFAULT 0,
    win_rate        REAL     NOT NULL DEFAULT 0,
    total_pnl       REAL     NOT NULL DEFAULT 0,
    max_drawdown    REAL     NOT NULL DEFAULT 0,
    sharpe_ratio    REAL     NOT NULL DEFAULT 0,
    signal_accuracy REAL     NOT NULL DEFAULT 0
);

-- Una fila por trade cerrado
CREATE TABLE IF NOT EXISTS trades (
    id                TEXT PRIMARY KEY,
    run_id            TEXT     NOT NULL,
    asset             TEXT     NOT NULL,
    condition_id      TEXT     NOT NULL,
    side              TEXT     NOT NULL,
    entry_price       REAL     NOT NULL,
    exit_price        REAL     NOT NULL,
    size              REAL     NOT NULL,
    cost_basis        REAL     NOT NULL,
    proceeds          REAL     NOT NULL,
    pnl               REAL     NOT NULL,
    pnl_percent       REAL     NOT NULL,
    exit_reason       TEXT     NOT NULL,
    signal_gap        REAL     NOT NULL DEFAULT 0,
    signal_confidence REAL     NOT NULL DEFAULT 0,
    hold_minutes      REAL     NOT NULL DEFAULT 0,
    closed_at_ms      INTEGER  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started  ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_run    ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed_at_ms DESC);
`

// retentionRuns limita el histórico: runs más viejos se eliminan al abrir.
const retentionRuns = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.TradeStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia runs antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade persiste un trade cerrado asociado a su run.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, runID string, trade domain.TradeRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, run_id, asset, condition_id, side, entry_price, exit_price,
			 size, cost_basis, proceeds, pnl, pnl_percent, exit_reason,
			 signal_gap, signal_confidence, hold_minutes, closed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		trade.ID,
		runID,
		trade.Asset,
		trade.ConditionID,
		trade.Side.String(),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Size,
		trade.CostBasis,
		trade.Proceeds,
		trade.PnL,
		trade.PnLPercent,
		string(trade.ExitReason),
		trade.SignalGap,
		trade.SignalConfidence,
		trade.HoldTimeMinutes,
		trade.TimestampMs,
	); err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", trade.ID, err)
	}
	return nil
}

// SaveBacktestRun persiste el resumen agregado de un run.
func (s *SQLiteStorage) SaveBacktestRun(ctx context.Context, result domain.BacktestResult) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, started_at, finished_at, windows, windows_traded,
			 start_balance, final_balance, total_trades, winning_trades,
			 win_rate, total_pnl, max_drawdown, sharpe_ratio, signal_accuracy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at     = excluded.finished_at,
			windows         = excluded.windows,
			windows_traded  = excluded.windows_traded,
			final_balance   = excluded.final_balance,
			total_trades    = excluded.total_trades,
			winning_trades  = excluded.winning_trades,
			win_rate        = excluded.win_rate,
			total_pnl       = excluded.total_pnl,
			max_drawdown    = excluded.max_drawdown,
			sharpe_ratio    = excluded.sharpe_ratio,
			signal_accuracy = excluded.signal_accuracy
	`,
		result.RunID,
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
		result.Windows,
		result.WindowsTraded,
		result.StartBalance,
		result.FinalBalance,
		result.TotalTrades,
		result.WinningTrades,
		result.WinRate,
		result.TotalPnL,
		result.MaxDrawdown,
		result.SharpeRatio,
		result.SignalAccuracy,
	); err != nil {
		return fmt.Errorf("storage.SaveBacktestRun: upsert %s: %w", result.RunID, err)
	}
	return nil
}

// GetTrades devuelve los trades de un run, más recientes primero.
func (s *SQLiteStorage) GetTrades(ctx context.Context, runID string) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset, condition_id, side, entry_price, exit_price,
		       size, cost_basis, proceeds, pnl, pnl_percent, exit_reason,
		       signal_gap, signal_confidence, hold_minutes, closed_at_ms
		FROM trades
		WHERE run_id = ?
		ORDER BY closed_at_ms DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var trade domain.TradeRecord
		var side, reason string

		if err := rows.Scan(
			&trade.ID,
			&trade.Asset,
			&trade.ConditionID,
			&side,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Size,
			&trade.CostBasis,
			&trade.Proceeds,
			&trade.PnL,
			&trade.PnLPercent,
			&reason,
			&trade.SignalGap,
			&trade.SignalConfidence,
			&trade.HoldTimeMinutes,
			&trade.TimestampMs,
		); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}

		trade.Side = sideFromString(side)
		trade.ExitReason = domain.ExitReason(reason)
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func sideFromString(s string) domain.Side {
	switch s {
	case "UP":
		return domain.SideUp
	case "DOWN":
		return domain.SideDown
	default:
		return domain.SideNone
	}
}

// pruneOld elimina runs antiguos (y sus trades) para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns)
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
}
