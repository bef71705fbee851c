package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/lagbot/config"
	"github.com/alejandrodnm/lagbot/internal/adapters/notify"
	"github.com/alejandrodnm/lagbot/internal/adapters/storage"
	"github.com/alejandrodnm/lagbot/internal/domain"
	"github.com/alejandrodnm/lagbot/internal/engine"
	"github.com/alejandrodnm/lagbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "run a backtest instead of the live session")
	days := flag.Int("days", 0, "backtest range in days (overrides config)")
	seed := flag.Int64("seed", 0, "backtest RNG seed (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full trade table in backtest reports")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("lagbot starting",
		"config", *configPath,
		"backtest", *backtest,
		"markets", len(cfg.Feeds.Markets),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	// En modo daemon (logs JSON) el output humano de consola estorba: las
	// señales y trades salen solo como logging estructurado. El backtest
	// conserva la consola siempre, el reporte es su razón de ser.
	var notifier ports.Notifier = notify.NewConsole(*table || *backtest)
	if cfg.Log.Format == "json" && !*backtest {
		notifier = notify.NewSlog()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *backtest {
		runBacktest(ctx, cfg, store, notifier, *days, *seed)
		return
	}

	if err := runLive(ctx, cfg, store, notifier); err != nil {
		slog.Error("live session exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("lagbot stopped cleanly")
}

// moveConfigFrom mapea la sección detector al MoveConfig del domain.
func moveConfigFrom(cfg *config.Config) domain.MoveConfig {
	return domain.MoveConfig{
		MinSamples:       cfg.Detector.MinSamples,
		Lookback:         cfg.Detector.Lookback,
		MoveThreshold:    cfg.Detector.MoveThreshold,
		MoveWindow:       cfg.MoveWindow(),
		SqueezeLookback:  cfg.Detector.SqueezeLookback,
		SqueezeThreshold: cfg.Detector.SqueezeThreshold,
	}
}

// runnerConfigFrom mapea la sección strategy a la configuración del runner.
func runnerConfigFrom(cfg *config.Config) engine.Config {
	return engine.Config{
		GapThreshold:     cfg.Strategy.GapThreshold,
		ExitGapThreshold: cfg.Strategy.ExitGapThreshold,
		PositionSizePct:  cfg.Strategy.PositionSizePct,
		MinLiquidity:     cfg.Strategy.MinLiquidity,
		MaxHoldTime:      cfg.MaxHoldTime(),
		Move:             moveConfigFrom(cfg),
		SettleWinPrice:   cfg.Strategy.SettleWinPrice,
		SettleLossPrice:  cfg.Strategy.SettleLossPrice,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
