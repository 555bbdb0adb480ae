package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/alert"
	"github.com/newthinker/upbot/internal/core"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// DateLayout is the format of backtest start/end dates
const DateLayout = "2006-01-02"

type Config struct {
	Trading   TradingConfig             `mapstructure:"trading"`
	Strategy  StrategyConfig            `mapstructure:"strategy"`
	Risk      RiskConfig                `mapstructure:"risk_management"`
	Backtest  BacktestConfig            `mapstructure:"backtest"`
	Exchange  ExchangeConfig            `mapstructure:"exchange"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Router    RouterConfig              `mapstructure:"router"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Alerts    AlertsConfig              `mapstructure:"alerts"`
}

// TradingConfig holds market selection and position sizing.
type TradingConfig struct {
	Markets           []string `mapstructure:"markets"`
	Interval          int      `mapstructure:"interval"` // minutes
	MaxInvestRatio    float64  `mapstructure:"max_invest_ratio"`
	TradeAmount       float64  `mapstructure:"trade_amount"`
	MinOrderAmount    float64  `mapstructure:"min_order_amount"`
	MinSignalStrength float64  `mapstructure:"min_signal_strength"`
	WarmupBars        int      `mapstructure:"warmup_bars"`
	// Paper routes live signals to the simulated adapter.
	Paper bool `mapstructure:"paper"`
}

// IntervalDuration returns the bar interval as a duration.
func (t TradingConfig) IntervalDuration() time.Duration {
	return time.Duration(t.Interval) * time.Minute
}

type StrategyConfig struct {
	MACrossover MACrossoverConfig `mapstructure:"ma_crossover"`
	RSI         RSIConfig         `mapstructure:"rsi"`
	Bollinger   BollingerConfig   `mapstructure:"bollinger"`
	Volume      VolumeConfig      `mapstructure:"volume"`
}

type MACrossoverConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Type        string `mapstructure:"type"` // "sma" or "ema"
	ShortPeriod int    `mapstructure:"short_period"`
	LongPeriod  int    `mapstructure:"long_period"`
	TrendPeriod int    `mapstructure:"trend_period"`
}

type RSIConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Period           int     `mapstructure:"period"`
	Oversold         float64 `mapstructure:"oversold"`
	Overbought       float64 `mapstructure:"overbought"`
	UseDivergence    bool    `mapstructure:"use_divergence"`
	DivergenceWindow int     `mapstructure:"divergence_window"`
}

type BollingerConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Period  int     `mapstructure:"period"`
	StdDev  float64 `mapstructure:"std_dev"`
}

type VolumeConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Period         int     `mapstructure:"period"`
	SurgeThreshold float64 `mapstructure:"surge_threshold"`
	Amplify        float64 `mapstructure:"amplify"`
	Dampen         float64 `mapstructure:"dampen"`
}

// RiskConfig holds exit thresholds as fractions of entry price.
type RiskConfig struct {
	StopLoss        float64 `mapstructure:"stop_loss"`
	TakeProfit      float64 `mapstructure:"take_profit"`
	TrailingStop    float64 `mapstructure:"trailing_stop"`
	UseTrailingStop bool    `mapstructure:"use_trailing_stop"`
}

type BacktestConfig struct {
	StartDate      string  `mapstructure:"start_date"`
	EndDate        string  `mapstructure:"end_date"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	Fee            float64 `mapstructure:"fee"`
	DataDir        string  `mapstructure:"data_dir"`
}

// Range parses the optional date bounds. A zero time means unbounded.
// The end date is inclusive.
func (b BacktestConfig) Range() (start, end time.Time, err error) {
	if b.StartDate != "" {
		start, err = time.Parse(DateLayout, b.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
		}
	}
	if b.EndDate != "" {
		end, err = time.Parse(DateLayout, b.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

type ExchangeConfig struct {
	AccessKey         string        `mapstructure:"access_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Fee               float64       `mapstructure:"fee"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	URL      string `mapstructure:"url"`
	// Email notifier fields
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	// Webhook notifier fields
	Headers map[string]string `mapstructure:"headers"`
}

type RouterConfig struct {
	Cooldown          time.Duration `mapstructure:"cooldown"`
	PortfolioInterval time.Duration `mapstructure:"portfolio_interval"`
	QueueSize         int           `mapstructure:"queue_size"`
}

type StorageConfig struct {
	JournalPath string        `mapstructure:"journal_path"`
	Archive     ArchiveConfig `mapstructure:"archive"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
	// APIKey guards /status and /signals when set.
	APIKey string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"` // debug, info, warn or error
	// File receives log output in addition to stderr when set.
	File string `mapstructure:"file"`
}

// AlertsConfig holds account alert rules, evaluated after every tick.
type AlertsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []alert.Rule  `mapstructure:"rules"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Trading: TradingConfig{
			Markets:           []string{"KRW-BTC"},
			Interval:          5,
			MaxInvestRatio:    0.3,
			TradeAmount:       100000,
			MinOrderAmount:    5000,
			MinSignalStrength: 0.6,
			WarmupBars:        200,
		},
		Strategy: StrategyConfig{
			MACrossover: MACrossoverConfig{
				Enabled:     true,
				Type:        "sma",
				ShortPeriod: 5,
				LongPeriod:  20,
				TrendPeriod: 60,
			},
			RSI: RSIConfig{
				Enabled:          true,
				Period:           14,
				Oversold:         30,
				Overbought:       70,
				DivergenceWindow: 10,
			},
			Bollinger: BollingerConfig{
				Enabled: true,
				Period:  20,
				StdDev:  2.0,
			},
			Volume: VolumeConfig{
				Enabled:        true,
				Period:         20,
				SurgeThreshold: 2.0,
				Amplify:        1.25,
				Dampen:         0.8,
			},
		},
		Risk: RiskConfig{
			StopLoss:        0.03,
			TakeProfit:      0.05,
			TrailingStop:    0.02,
			UseTrailingStop: true,
		},
		Backtest: BacktestConfig{
			InitialBalance: 1000000,
			Fee:            0.0005,
			DataDir:        "data",
		},
		Exchange: ExchangeConfig{
			BaseURL:           "https://api.upbit.com",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 8,
			Fee:               0.0005,
		},
		Router: RouterConfig{
			Cooldown:          5 * time.Minute,
			PortfolioInterval: 15 * time.Minute,
			QueueSize:         64,
		},
		Storage: StorageConfig{
			JournalPath: "data/journal.db",
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "data/archive",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Alerts: AlertsConfig{
			Cooldown: time.Hour,
		},
	}
}

func invalid(format string, args ...any) error {
	return core.WrapError(core.ErrConfigInvalid, fmt.Errorf(format, args...))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Trading validation
	if len(c.Trading.Markets) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("trading.markets must list at least one market"))
	}
	seen := make(map[string]bool, len(c.Trading.Markets))
	for _, m := range c.Trading.Markets {
		if m == "" || seen[m] {
			return invalid("trading.markets contains an empty or duplicate market %q", m)
		}
		seen[m] = true
	}
	if c.Trading.Interval <= 0 {
		return invalid("trading.interval must be positive, got %d", c.Trading.Interval)
	}
	if c.Trading.MaxInvestRatio <= 0 || c.Trading.MaxInvestRatio > 1 {
		return invalid("trading.max_invest_ratio must be in (0, 1], got %f", c.Trading.MaxInvestRatio)
	}
	if c.Trading.TradeAmount <= 0 {
		return invalid("trading.trade_amount must be positive, got %f", c.Trading.TradeAmount)
	}
	if c.Trading.MinOrderAmount < 0 {
		return invalid("trading.min_order_amount cannot be negative, got %f", c.Trading.MinOrderAmount)
	}
	if c.Trading.MinSignalStrength < 0 || c.Trading.MinSignalStrength > 1 {
		return invalid("trading.min_signal_strength must be between 0 and 1, got %f", c.Trading.MinSignalStrength)
	}
	if c.Trading.WarmupBars < 0 {
		return invalid("trading.warmup_bars cannot be negative, got %d", c.Trading.WarmupBars)
	}

	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}

	// Backtest validation
	if c.Backtest.InitialBalance <= 0 {
		return invalid("backtest.initial_balance must be positive, got %f", c.Backtest.InitialBalance)
	}
	if c.Backtest.Fee < 0 || c.Backtest.Fee >= 1 {
		return invalid("backtest.fee must be in [0, 1), got %f", c.Backtest.Fee)
	}
	start, end, err := c.Backtest.Range()
	if err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("backtest.end_date %s is before start_date %s", c.Backtest.EndDate, c.Backtest.StartDate)
	}

	// Exchange validation
	if c.Exchange.Fee < 0 || c.Exchange.Fee >= 1 {
		return invalid("exchange.fee must be in [0, 1), got %f", c.Exchange.Fee)
	}
	if c.Exchange.Timeout < 0 {
		return invalid("exchange.timeout cannot be negative, got %s", c.Exchange.Timeout)
	}
	if c.Exchange.RequestsPerSecond < 0 {
		return invalid("exchange.requests_per_second cannot be negative, got %f", c.Exchange.RequestsPerSecond)
	}

	// Router validation
	if c.Router.Cooldown < 0 {
		return invalid("router.cooldown cannot be negative, got %s", c.Router.Cooldown)
	}

	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return invalid("logging.level: %v", err)
		}
	}

	switch c.Storage.Archive.Type {
	case "", "localfs", "s3":
	default:
		return invalid("storage.archive.type must be localfs or s3, got %q", c.Storage.Archive.Type)
	}

	if c.Alerts.Enabled {
		if c.Alerts.Cooldown < 0 {
			return invalid("alerts.cooldown cannot be negative, got %s", c.Alerts.Cooldown)
		}
		names := make(map[string]bool, len(c.Alerts.Rules))
		for _, r := range c.Alerts.Rules {
			if err := r.Validate(); err != nil {
				return err
			}
			if names[r.Name] {
				return invalid("alerts.rules: duplicate rule %q", r.Name)
			}
			names[r.Name] = true
		}
	}

	return nil
}

// ValidateLive checks settings that only live trading needs.
func (c *Config) ValidateLive() error {
	if c.Trading.Paper {
		return nil
	}
	if c.Exchange.AccessKey == "" || c.Exchange.SecretKey == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("exchange access_key and secret_key required for live trading"))
	}
	return nil
}

func (s StrategyConfig) validate() error {
	directional := 0

	if ma := s.MACrossover; ma.Enabled {
		directional++
		if ma.Type != "sma" && ma.Type != "ema" {
			return invalid("strategy.ma_crossover.type must be sma or ema, got %q", ma.Type)
		}
		if ma.ShortPeriod <= 0 || ma.LongPeriod <= 0 || ma.TrendPeriod <= 0 {
			return invalid("strategy.ma_crossover periods must be positive")
		}
		if ma.ShortPeriod >= ma.LongPeriod {
			return invalid("strategy.ma_crossover.short_period %d must be below long_period %d", ma.ShortPeriod, ma.LongPeriod)
		}
	}

	if r := s.RSI; r.Enabled {
		directional++
		if r.Period <= 0 {
			return invalid("strategy.rsi.period must be positive, got %d", r.Period)
		}
		if r.Oversold < 0 || r.Overbought > 100 || r.Oversold >= r.Overbought {
			return invalid("strategy.rsi thresholds must satisfy 0 <= oversold < overbought <= 100, got %f/%f", r.Oversold, r.Overbought)
		}
		if r.UseDivergence && r.DivergenceWindow <= 0 {
			return invalid("strategy.rsi.divergence_window must be positive, got %d", r.DivergenceWindow)
		}
	}

	if b := s.Bollinger; b.Enabled {
		directional++
		if b.Period < 2 {
			return invalid("strategy.bollinger.period must be at least 2, got %d", b.Period)
		}
		if b.StdDev <= 0 {
			return invalid("strategy.bollinger.std_dev must be positive, got %f", b.StdDev)
		}
	}

	if v := s.Volume; v.Enabled {
		if v.Period <= 0 {
			return invalid("strategy.volume.period must be positive, got %d", v.Period)
		}
		if v.SurgeThreshold <= 0 || v.Amplify <= 0 || v.Dampen <= 0 {
			return invalid("strategy.volume surge_threshold, amplify and dampen must be positive")
		}
	}

	if directional == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("at least one of ma_crossover, rsi or bollinger must be enabled"))
	}
	return nil
}

func (r RiskConfig) validate() error {
	if r.StopLoss <= 0 || r.StopLoss >= 1 {
		return invalid("risk_management.stop_loss must be in (0, 1), got %f", r.StopLoss)
	}
	if r.TakeProfit <= 0 {
		return invalid("risk_management.take_profit must be positive, got %f", r.TakeProfit)
	}
	if r.UseTrailingStop && (r.TrailingStop <= 0 || r.TrailingStop >= 1) {
		return invalid("risk_management.trailing_stop must be in (0, 1), got %f", r.TrailingStop)
	}
	return nil
}
