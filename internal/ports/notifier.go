package ports

import (
	"context"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

// Notifier presenta señales, trades y resultados al usuario.
type Notifier interface {
	// SignalDetected anuncia una señal aceptada por el runner.
	SignalDetected(ctx context.Context, signal domain.Signal)

	// TradeClosed anuncia un trade liquidado.
	TradeClosed(ctx context.Context, trade domain.TradeRecord)

	// BacktestReport imprime el resumen de un run completo.
	// En la implementación de consola, una tabla formateada de trades
	// más el bloque de métricas agregadas.
	BacktestReport(result domain.BacktestResult, trades []domain.TradeRecord) error
}
