package ports

import (
	"context"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

// TradeStorage persiste los trades cerrados y los resúmenes de backtest.
type TradeStorage interface {
	// SaveTrade persiste un trade cerrado asociado a un run.
	SaveTrade(ctx context.Context, runID string, trade domain.TradeRecord) error

	// SaveBacktestRun persiste el resumen agregado de un run de backtest.
	SaveBacktestRun(ctx context.Context, result domain.BacktestResult) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
