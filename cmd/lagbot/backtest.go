package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/lagbot/config"
	"github.com/alejandrodnm/lagbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/lagbot/internal/adapters/storage"
	"github.com/alejandrodnm/lagbot/internal/backtest"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

// runBacktest lanza un run sobre ventanas sintéticas (o históricas si el
// config lo pide) y deja el resultado en storage y consola.
func runBacktest(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, notifier ports.Notifier, days int, seed int64) {
	if days <= 0 {
		days = cfg.Backtest.Days
	}
	if seed == 0 {
		seed = cfg.Backtest.Seed
	}

	assets := make([]string, 0, len(cfg.Feeds.Symbols))
	for asset := range cfg.Feeds.Symbols {
		assets = append(assets, asset)
	}

	end := time.Now().UTC().Truncate(15 * time.Minute)
	start := end.AddDate(0, 0, -days)

	var history ports.HistoryProvider
	if cfg.Backtest.UseHistory {
		history = polymarket.NewHistoryClient(cfg.Feeds.CLOBBase)
	}

	sim := backtest.NewSimulator(backtest.SimConfig{
		Assets:       assets,
		Start:        start,
		End:          end,
		BasePrices:   cfg.Backtest.BasePrices,
		Volatility:   cfg.Backtest.Volatility,
		HardMoveProb: cfg.Backtest.HardMoveProb,
		Liquidity:    cfg.Backtest.Liquidity,
		Seed:         seed,
	}, history)

	eng := backtest.NewEngine(backtest.Config{
		Runner:         runnerConfigFrom(cfg),
		InitialBalance: cfg.Strategy.InitialBalance,
		Workers:        cfg.Backtest.Workers,
	}, sim, store, notifier)

	slog.Info("backtest starting",
		"assets", assets,
		"days", days,
		"seed", seed,
		"use_history", cfg.Backtest.UseHistory,
	)

	if _, _, err := eng.Run(ctx); err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}
}
