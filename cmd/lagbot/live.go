package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/lagbot/config"
	"github.com/alejandrodnm/lagbot/internal/adapters/binance"
	"github.com/alejandrodnm/lagbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/lagbot/internal/adapters/storage"
	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/engine"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

// eventBacklog dimensiona el canal mergeado. Con dos feeds a ~10 msg/s un
// backlog de 1024 absorbe ráfagas de reconexión sin bloquear los readers.
const eventBacklog = 1024

// runLive conecta los dos feeds y corre la sesión hasta cancelación.
// Paper trading: las posiciones son un ledger local, nunca órdenes reales.
func runLive(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, notifier ports.Notifier) error {
	if len(cfg.Feeds.Markets) == 0 {
		return fmt.Errorf("runLive: no markets configured")
	}

	markets := make([]engine.TrackedMarket, 0, len(cfg.Feeds.Markets))
	tokens := make([]string, 0, 2*len(cfg.Feeds.Markets))
	for _, m := range cfg.Feeds.Markets {
		markets = append(markets, engine.TrackedMarket{
			Asset:       m.Asset,
			ConditionID: m.ConditionID,
			UpTokenID:   m.UpTokenID,
			DownTokenID: m.DownTokenID,
		})
		tokens = append(tokens, m.UpTokenID, m.DownTokenID)
	}

	events := make(chan domain.FeedEvent, eventBacklog)

	session := engine.NewSession(engine.SessionConfig{
		Runner:         runnerConfigFrom(cfg),
		Markets:        markets,
		InitialBalance: cfg.Strategy.InitialBalance,
	}, events, store, notifier)

	spot := binance.New(cfg.Feeds.BinanceWSBase, cfg.Feeds.Symbols, events)
	if err := spot.Start(ctx); err != nil {
		slog.Warn("binance feed initial connect failed, retrying in background", "err", err)
	}
	defer spot.Stop()

	clob := polymarket.NewFeed(cfg.Feeds.PolymarketWSURL, tokens, cfg.Feeds.PolymarketAuth, events)
	if err := clob.Start(ctx); err != nil {
		slog.Warn("polymarket feed initial connect failed, retrying in background", "err", err)
	}
	defer clob.Stop()

	slog.Info("live session running",
		"run_id", session.RunID(),
		"symbols", len(cfg.Feeds.Symbols),
		"tokens", len(tokens),
	)

	err := session.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
