package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Feeds    FeedsConfig    `yaml:"feeds"`
	Detector DetectorConfig `yaml:"detector"`
	Strategy StrategyConfig `yaml:"strategy"`
	Backtest BacktestConfig `yaml:"backtest"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// FeedsConfig contiene los endpoints de streaming y los mercados seguidos.
type FeedsConfig struct {
	BinanceWSBase   string            `yaml:"binance_ws_base"`
	PolymarketWSURL string            `yaml:"polymarket_ws_url"`
	CLOBBase        string            `yaml:"clob_base"` // REST, para el histórico de precios
	PolymarketAuth  string            `yaml:"-"`         // solo por env, nunca en el YAML
	Symbols         map[string]string `yaml:"symbols"`   // asset → símbolo de Binance (BTC → BTCUSDT)
	Markets         []MarketConfig    `yaml:"markets"`
}

// MarketConfig identifica una ventana de mercado binario seguida en live.
type MarketConfig struct {
	Asset       string `yaml:"asset"`
	ConditionID string `yaml:"condition_id"`
	UpTokenID   string `yaml:"up_token_id"`
	DownTokenID string `yaml:"down_token_id"`
}

// DetectorConfig parametriza la detección de hard moves.
type DetectorConfig struct {
	MinSamples        int     `yaml:"min_samples"`
	Lookback          int     `yaml:"lookback"`
	MoveThreshold     float64 `yaml:"move_threshold"`
	MoveWindowSeconds int     `yaml:"move_window_seconds"`
	SqueezeLookback   int     `yaml:"squeeze_lookback"`
	SqueezeThreshold  float64 `yaml:"squeeze_threshold"`
}

// StrategyConfig parametriza entradas, salidas y sizing.
type StrategyConfig struct {
	GapThreshold     float64 `yaml:"gap_threshold"`
	ExitGapThreshold float64 `yaml:"exit_gap_threshold"`
	PositionSizePct  float64 `yaml:"position_size_pct"`
	MinLiquidity     float64 `yaml:"min_liquidity"`
	MaxHoldMinutes   int     `yaml:"max_hold_minutes"`
	InitialBalance   float64 `yaml:"initial_balance"`
	SettleWinPrice   float64 `yaml:"settle_win_price"`
	SettleLossPrice  float64 `yaml:"settle_loss_price"`
}

// BacktestConfig parametriza la generación sintética de ventanas.
type BacktestConfig struct {
	Days         int                `yaml:"days"`
	Seed         int64              `yaml:"seed"`
	Workers      int                `yaml:"workers"`
	Volatility   float64            `yaml:"volatility"`
	HardMoveProb float64            `yaml:"hard_move_prob"`
	Liquidity    float64            `yaml:"liquidity"`
	BasePrices   map[string]float64 `yaml:"base_prices"`
	UseHistory   bool               `yaml:"use_history"` // intentar precios reales antes del sintético
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// MoveWindow devuelve la ventana máxima del hard move como time.Duration.
func (c *Config) MoveWindow() time.Duration {
	return time.Duration(c.Detector.MoveWindowSeconds) * time.Second
}

// MaxHoldTime devuelve el tiempo máximo en posición como time.Duration.
func (c *Config) MaxHoldTime() time.Duration {
	return time.Duration(c.Strategy.MaxHoldMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("BINANCE_WS_BASE"); v != "" {
		cfg.Feeds.BinanceWSBase = v
	}
	if v := os.Getenv("POLYMARKET_WS_URL"); v != "" {
		cfg.Feeds.PolymarketWSURL = v
	}
	// Credencial del canal user; opcional y nunca persiste en YAML.
	if v := os.Getenv("POLYMARKET_AUTH"); v != "" {
		cfg.Feeds.PolymarketAuth = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Feeds.BinanceWSBase == "" {
		cfg.Feeds.BinanceWSBase = "wss://stream.binance.com:9443"
	}
	if cfg.Feeds.PolymarketWSURL == "" {
		cfg.Feeds.PolymarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Feeds.CLOBBase == "" {
		cfg.Feeds.CLOBBase = "https://clob.polymarket.com"
	}
	if len(cfg.Feeds.Symbols) == 0 {
		cfg.Feeds.Symbols = map[string]string{"BTC": "BTCUSDT", "ETH": "ETHUSDT"}
	}

	if cfg.Detector.MinSamples <= 0 {
		cfg.Detector.MinSamples = 30
	}
	if cfg.Detector.Lookback <= 0 {
		cfg.Detector.Lookback = 60
	}
	if cfg.Detector.MoveThreshold <= 0 {
		cfg.Detector.MoveThreshold = 0.02
	}
	if cfg.Detector.MoveWindowSeconds <= 0 {
		cfg.Detector.MoveWindowSeconds = 120
	}
	if cfg.Detector.SqueezeLookback <= 0 {
		cfg.Detector.SqueezeLookback = 60
	}
	if cfg.Detector.SqueezeThreshold <= 0 {
		cfg.Detector.SqueezeThreshold = 0.003
	}

	if cfg.Strategy.GapThreshold <= 0 {
		cfg.Strategy.GapThreshold = 0.05
	}
	if cfg.Strategy.ExitGapThreshold <= 0 {
		cfg.Strategy.ExitGapThreshold = 0.02
	}
	if cfg.Strategy.PositionSizePct <= 0 {
		cfg.Strategy.PositionSizePct = 0.05
	}
	if cfg.Strategy.MinLiquidity <= 0 {
		cfg.Strategy.MinLiquidity = 500
	}
	if cfg.Strategy.MaxHoldMinutes <= 0 {
		cfg.Strategy.MaxHoldMinutes = 5
	}
	if cfg.Strategy.InitialBalance <= 0 {
		cfg.Strategy.InitialBalance = 1000
	}
	if cfg.Strategy.SettleWinPrice <= 0 {
		cfg.Strategy.SettleWinPrice = 0.95
	}
	if cfg.Strategy.SettleLossPrice <= 0 {
		cfg.Strategy.SettleLossPrice = 0.05
	}

	if cfg.Backtest.Days <= 0 {
		cfg.Backtest.Days = 7
	}
	if cfg.Backtest.Seed == 0 {
		cfg.Backtest.Seed = 1
	}
	if cfg.Backtest.Volatility <= 0 {
		cfg.Backtest.Volatility = 0.0004
	}
	if cfg.Backtest.HardMoveProb <= 0 {
		cfg.Backtest.HardMoveProb = 0.4
	}
	if cfg.Backtest.Liquidity <= 0 {
		cfg.Backtest.Liquidity = 5000
	}
	if len(cfg.Backtest.BasePrices) == 0 {
		cfg.Backtest.BasePrices = map[string]float64{"BTC": 65000, "ETH": 3400}
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "lagbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
