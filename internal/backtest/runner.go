package backtest

// runner.go — ejecución del backtest: worker pool sobre ventanas.
//
// Cada ventana es independiente (mismo balance inicial, sin estado
// compartido), así que se reparten entre workers y el resultado agregado no
// depende del orden de procesamiento.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/engine"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

// Config parametriza un run completo de backtest.
type Config struct {
	Sim            SimConfig
	Runner         engine.Config
	InitialBalance float64
	Workers        int // <= 0 usa runtime.NumCPU()
}

// Engine orquesta simulador, escaneo por ventana y agregación.
type Engine struct {
	cfg      Config
	sim      *Simulator
	storage  ports.TradeStorage
	notifier ports.Notifier
}

// NewEngine crea el motor de backtest. storage y notifier pueden ser nil.
func NewEngine(cfg Config, sim *Simulator, storage ports.TradeStorage, notifier ports.Notifier) *Engine {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 1000
	}
	return &Engine{cfg: cfg, sim: sim, storage: storage, notifier: notifier}
}

// Run genera las ventanas, las escanea en paralelo y agrega el resultado.
func (e *Engine) Run(ctx context.Context) (domain.BacktestResult, []domain.TradeRecord, error) {
	startedAt := time.Now()

	windows, err := e.sim.Windows(ctx)
	if err != nil {
		return domain.BacktestResult{}, nil, fmt.Errorf("backtest.Run: %w", err)
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	workCh := make(chan Window, len(windows))
	resultCh := make(chan domain.TradeRecord, len(windows))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				if trade := ScanWindow(w, e.cfg.Runner, e.cfg.InitialBalance); trade != nil {
					resultCh <- *trade
				}
			}
		}()
	}

	for _, w := range windows {
		workCh <- w
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	trades := make([]domain.TradeRecord, 0, len(windows))
	for trade := range resultCh {
		trades = append(trades, trade)
	}

	result := domain.Aggregate(trades, e.cfg.InitialBalance, len(windows))
	result.RunID = uuid.NewString()
	result.StartedAt = startedAt
	result.FinishedAt = time.Now()

	slog.Info("backtest complete",
		"run_id", result.RunID,
		"windows", result.Windows,
		"trades", result.TotalTrades,
		"win_rate", fmt.Sprintf("%.1f%%", result.WinRate*100),
		"total_pnl", fmt.Sprintf("%.2f", result.TotalPnL),
	)

	if err := e.persist(ctx, result, trades); err != nil {
		slog.Warn("backtest persistence failed", "run_id", result.RunID, "err", err)
	}
	if e.notifier != nil {
		if err := e.notifier.BacktestReport(result, trades); err != nil {
			slog.Warn("backtest report failed", "run_id", result.RunID, "err", err)
		}
	}

	return result, trades, nil
}

func (e *Engine) persist(ctx context.Context, result domain.BacktestResult, trades []domain.TradeRecord) error {
	if e.storage == nil {
		return nil
	}
	if err := e.storage.SaveBacktestRun(ctx, result); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	for _, trade := range trades {
		if err := e.storage.SaveTrade(ctx, result.RunID, trade); err != nil {
			return fmt.Errorf("save trade %s: %w", trade.ID, err)
		}
	}
	return nil
}

// ScanWindow reproduce una ventana tick a tick contra un runner nuevo.
// Devuelve el trade de la ventana, o nil si nunca hubo señal.
func ScanWindow(w Window, cfg engine.Config, balance float64) *domain.TradeRecord {
	history := domain.NewPriceHistory(w.Market.Asset, domain.DefaultHistoryPoints, domain.DefaultHistoryWindow)
	runner := engine.NewRunner(cfg, w.Market, balance)

	for i, tick := range w.Ticks {
		history.Append(tick)
		// El book sintético es simétrico: misma liquidez en ambos lados.
		_, trade := runner.Evaluate(engine.TickInput{
			History:       history.Snapshot(),
			UpProb:        w.UpProbs[i],
			DownProb:      w.DownProbs[i],
			UpLiquidity:   w.Liquidity,
			DownLiquidity: w.Liquidity,
			NowMs:         tick.TimestampMs,
		})
		if trade != nil {
			return trade
		}
	}

	// Posición aún abierta al agotar los ticks: liquidación forzosa.
	return runner.ForceSettle(w.Market.Outcome, w.Market.EndTime.UnixMilli())
}
