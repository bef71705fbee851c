package polymarket

// history.go — cliente REST del endpoint de precios históricos, usado solo
// por el backtest. La ausencia de datos no es un error del run: el caller
// cae a generación sintética.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

const (
	defaultHistoryBase = "https://clob.polymarket.com"

	// Rate limit conservador: el endpoint de history es barato pero el
	// backtest lo golpea una vez por ventana.
	historyRatePerSec = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// HistoryClient implementa ports.HistoryProvider contra el endpoint REST.
type HistoryClient struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewHistoryClient crea el cliente. base vacío usa producción.
func NewHistoryClient(base string) *HistoryClient {
	if base == "" {
		base = defaultHistoryBase
	}
	return &HistoryClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(historyRatePerSec, 5),
	}
}

// historyResponse es la respuesta del endpoint: puntos {t: unix s, p: precio}.
type historyResponse struct {
	History []struct {
		T int64       `json:"t"`
		P json.Number `json:"p"`
	} `json:"history"`
}

// FetchPriceHistory pide el path de precios del mercado en [start, end) a
// resolución de 1 segundo. Devuelve ports.ErrNoHistory si la respuesta no
// trae el campo history o viene vacío.
func (c *HistoryClient) FetchPriceHistory(ctx context.Context, market string, start, end time.Time) ([]domain.PriceTick, error) {
	q := url.Values{}
	q.Set("market", market)
	q.Set("start_ts", fmt.Sprintf("%d", start.Unix()))
	q.Set("end_ts", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1")

	var resp historyResponse
	if err := c.get(ctx, c.base+"/prices-history?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("polymarket.FetchPriceHistory: %s: %w", market, err)
	}
	if len(resp.History) == 0 {
		return nil, ports.ErrNoHistory
	}

	ticks := make([]domain.PriceTick, 0, len(resp.History))
	for _, p := range resp.History {
		price, err := p.P.Float64()
		if err != nil || price <= 0 {
			continue
		}
		ticks = append(ticks, domain.PriceTick{
			Asset:       market,
			Price:       price,
			TimestampMs: p.T * 1000,
		})
	}
	if len(ticks) == 0 {
		return nil, ports.ErrNoHistory
	}
	return ticks, nil
}

// get hace un GET con rate limiting y retries con backoff exponencial.
func (c *HistoryClient) get(ctx context.Context, fullURL string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("history endpoint retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial y respeta el contexto.
func (c *HistoryClient) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
