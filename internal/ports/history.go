package ports

import (
	"context"
	"errors"
	"time"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

// ErrNoHistory indica que el endpoint histórico no tiene datos para la
// ventana pedida. El caller hace fallback a generación sintética; nunca
// es un error fatal de un run de backtest.
var ErrNoHistory = errors.New("ports: no price history available")

// HistoryProvider obtiene paths históricos de precio para el backtest.
type HistoryProvider interface {
	// FetchPriceHistory devuelve los ticks del mercado en [start, end) a
	// resolución de 1 segundo. Devuelve ErrNoHistory si la respuesta no
	// trae datos.
	FetchPriceHistory(ctx context.Context, market string, start, end time.Time) ([]domain.PriceTick, error)
}
