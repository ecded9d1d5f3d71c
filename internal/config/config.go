package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	VariantRollingRegression = "rolling_regression"
	VariantDynamicSpread     = "dynamic_spread"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Risk      RiskConfig      `yaml:"risk"`
	Hedge     HedgeConfig     `yaml:"hedge"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxFailures    int           `yaml:"max_failures"`
}

type GatewayConfig struct {
	RateLimit    int           `yaml:"rate_limit"`
	RateInterval time.Duration `yaml:"rate_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type StrategyConfig struct {
	Variant string `yaml:"variant"`

	TickSize        int64         `yaml:"tick_size"`
	LotSize         int64         `yaml:"lot_size"`
	MinRepriceTicks int64         `yaml:"min_reprice_ticks"`
	SkewGain        float64       `yaml:"skew_gain"`
	QuoteTTL        time.Duration `yaml:"quote_ttl"`

	// Rolling-regression variant.
	BaseSpread         float64 `yaml:"base_spread"`
	ConservativeSpread float64 `yaml:"conservative_spread"`
	DegradedSpread     float64 `yaml:"degraded_spread"`
	VarianceGain       float64 `yaml:"variance_gain"`

	// Dynamic-spread variant.
	VolGain             float64 `yaml:"vol_gain"`
	ImbalanceGain       float64 `yaml:"imbalance_gain"`
	ImbalanceDepth      int     `yaml:"imbalance_depth"`
	PositionFactorMax   float64 `yaml:"position_factor_max"`
	PositionSensitivity float64 `yaml:"position_sensitivity"`
	OrderThresholdFrac  float64 `yaml:"order_threshold_frac"`
	RebalanceFrac       float64 `yaml:"rebalance_frac"`
}

type EstimatorConfig struct {
	Window         int `yaml:"window"`
	MinSamples     int `yaml:"min_samples"`
	SampleInterval int `yaml:"sample_interval"`
	VolWindow      int `yaml:"vol_window"`
	TradeWindow    int `yaml:"trade_window"`
}

type RiskConfig struct {
	PositionLimit       int64 `yaml:"position_limit"`
	FuturePositionLimit int64 `yaml:"future_position_limit"`
	MaxOrders           int   `yaml:"max_orders"`
	MaxOrdersPerSide    int   `yaml:"max_orders_per_side"`
	MaxOrderSize        int64 `yaml:"max_order_size"`
}

type HedgeConfig struct {
	DeficitFrac   float64       `yaml:"deficit_frac"`
	MaxMtmLoss    float64       `yaml:"max_mtm_loss"`
	MaxAge        time.Duration `yaml:"max_age"`
	Interval      time.Duration `yaml:"interval"`
	SlipTicks     int64         `yaml:"slip_ticks"`
	FlattenOnExit bool          `yaml:"flatten_on_exit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 15 * time.Second
	}
	if cfg.Feed.MaxFailures == 0 {
		cfg.Feed.MaxFailures = 5
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = 47
	}
	if cfg.Gateway.RateInterval == 0 {
		cfg.Gateway.RateInterval = time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/rtg-maker-bot.db"
	}
	if cfg.Strategy.Variant == "" {
		cfg.Strategy.Variant = VariantRollingRegression
	}
	if cfg.Strategy.TickSize == 0 {
		cfg.Strategy.TickSize = 100
	}
	if cfg.Strategy.LotSize == 0 {
		cfg.Strategy.LotSize = 10
	}
	if cfg.Strategy.MinRepriceTicks == 0 {
		cfg.Strategy.MinRepriceTicks = 1
	}
	if cfg.Strategy.SkewGain == 0 {
		cfg.Strategy.SkewGain = 0.8
	}
	if cfg.Strategy.BaseSpread == 0 {
		cfg.Strategy.BaseSpread = 0.001
	}
	if cfg.Strategy.ConservativeSpread == 0 {
		cfg.Strategy.ConservativeSpread = 0.002
	}
	if cfg.Strategy.DegradedSpread == 0 {
		cfg.Strategy.DegradedSpread = 0.003
	}
	if cfg.Strategy.VolGain == 0 {
		cfg.Strategy.VolGain = 0.5
	}
	if cfg.Strategy.ImbalanceDepth == 0 {
		cfg.Strategy.ImbalanceDepth = 3
	}
	if cfg.Strategy.PositionFactorMax == 0 {
		cfg.Strategy.PositionFactorMax = 2.0
	}
	if cfg.Strategy.PositionSensitivity == 0 {
		cfg.Strategy.PositionSensitivity = 0.5
	}
	if cfg.Strategy.OrderThresholdFrac == 0 {
		cfg.Strategy.OrderThresholdFrac = 0.5
	}
	if cfg.Strategy.RebalanceFrac == 0 {
		cfg.Strategy.RebalanceFrac = 0.8
	}
	if cfg.Estimator.Window == 0 {
		cfg.Estimator.Window = 64
	}
	if cfg.Estimator.MinSamples == 0 {
		cfg.Estimator.MinSamples = 10
	}
	if cfg.Estimator.SampleInterval == 0 {
		cfg.Estimator.SampleInterval = 1
	}
	if cfg.Estimator.VolWindow == 0 {
		cfg.Estimator.VolWindow = 50
	}
	if cfg.Estimator.TradeWindow == 0 {
		cfg.Estimator.TradeWindow = 128
	}
	if cfg.Risk.PositionLimit == 0 {
		cfg.Risk.PositionLimit = 100
	}
	if cfg.Risk.FuturePositionLimit == 0 {
		cfg.Risk.FuturePositionLimit = cfg.Risk.PositionLimit
	}
	if cfg.Risk.MaxOrders == 0 {
		cfg.Risk.MaxOrders = 8
	}
	if cfg.Risk.MaxOrdersPerSide == 0 {
		cfg.Risk.MaxOrdersPerSide = 4
	}
	if cfg.Risk.MaxOrderSize == 0 {
		cfg.Risk.MaxOrderSize = cfg.Risk.PositionLimit
	}
	if cfg.Hedge.DeficitFrac == 0 {
		cfg.Hedge.DeficitFrac = 0.1
	}
	if cfg.Hedge.MaxAge == 0 {
		cfg.Hedge.MaxAge = 58 * time.Second
	}
	if cfg.Hedge.Interval == 0 {
		cfg.Hedge.Interval = time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	switch cfg.Strategy.Variant {
	case VariantRollingRegression, VariantDynamicSpread:
	default:
		return fmt.Errorf("strategy.variant must be %q or %q", VariantRollingRegression, VariantDynamicSpread)
	}
	if cfg.Strategy.TickSize <= 0 {
		return errors.New("strategy.tick_size must be > 0")
	}
	if cfg.Strategy.LotSize <= 0 {
		return errors.New("strategy.lot_size must be > 0")
	}
	if cfg.Risk.PositionLimit <= 0 {
		return errors.New("risk.position_limit must be > 0")
	}
	if cfg.Risk.MaxOrderSize > cfg.Risk.PositionLimit {
		return errors.New("risk.max_order_size exceeds risk.position_limit")
	}
	if cfg.Hedge.DeficitFrac < 0 || cfg.Hedge.DeficitFrac > 1 {
		return errors.New("hedge.deficit_frac must be within [0, 1]")
	}
	if cfg.Journal.Enabled && cfg.Journal.DSN == "" {
		return errors.New("journal.dsn is required when journal.enabled")
	}
	return nil
}
