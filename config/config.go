// Package config loads and validates the daemon configuration from a
// YAML file with VOLBREAK_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/volbreak/volbreak/core"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config is the full daemon configuration. Zero values are replaced by
// the defaults registered in Load.
type Config struct {
	Instrument string `mapstructure:"instrument"`
	Timeframe  string `mapstructure:"timeframe"`
	DataDir    string `mapstructure:"data_dir"`

	Strategy StrategyConfig `mapstructure:"strategy"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Order    OrderConfig    `mapstructure:"order"`
	Dydx     DydxConfig     `mapstructure:"dydx"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Log      LogConfig      `mapstructure:"log"`

	// UpdateInterval is the control-loop period, e.g. "45s" or "1m".
	UpdateInterval string `mapstructure:"update_interval"`

	SimulationMode   bool    `mapstructure:"simulation_mode"`
	InitialEquityUSD float64 `mapstructure:"initial_equity_usd"`
}

// StrategyConfig holds the breakout detection parameters.
type StrategyConfig struct {
	VolumeFactor      float64 `mapstructure:"volume_factor"`
	ResistancePeriods int     `mapstructure:"resistance_periods"`
	VolumeLookback    int     `mapstructure:"volume_lookback"`
	RiskRewardRatio   float64 `mapstructure:"risk_reward_ratio"`
	StopOffsetPct     float64 `mapstructure:"stop_offset_pct"`
	PositionSizeUSD   float64 `mapstructure:"position_size_usd"`
}

// RiskConfig holds the entry gate and circuit breaker limits.
type RiskConfig struct {
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd"`
	MaxDailyLossUSD    float64 `mapstructure:"max_daily_loss_usd"`
	MaxDrawdownPct     float64 `mapstructure:"max_drawdown_pct"`
	MaxLeverage        float64 `mapstructure:"max_leverage"`
}

// OrderConfig holds execution parameters.
type OrderConfig struct {
	LotSize float64 `mapstructure:"lot_size"`
	// Timeout for a live market order to fill, e.g. "10s".
	Timeout string `mapstructure:"timeout"`
	// Store selects the order audit backend: "bunt" or "sqlite".
	Store string `mapstructure:"store"`
}

// DydxConfig holds the indexer endpoints and subaccount identity. The
// gateway URL points at the local signing gateway used for live orders.
type DydxConfig struct {
	RESTURL          string `mapstructure:"rest_url"`
	WSURL            string `mapstructure:"ws_url"`
	GatewayURL       string `mapstructure:"gateway_url"`
	Address          string `mapstructure:"address"`
	SubaccountNumber int    `mapstructure:"subaccount_number"`
}

// TelegramConfig enables the optional operator notifier.
type TelegramConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Token   string  `mapstructure:"token"`
	Users   []int64 `mapstructure:"users"`
}

// LogConfig controls the logger backend.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	JSON    bool   `mapstructure:"json"`
	Colored bool   `mapstructure:"colored"`
}

// Load reads the configuration file at path. A missing file is not an
// error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VOLBREAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if token := os.Getenv("VOLBREAK_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instrument", "ETH-USD")
	v.SetDefault("timeframe", "5m")
	v.SetDefault("data_dir", "data")
	v.SetDefault("update_interval", "45s")
	v.SetDefault("simulation_mode", true)
	v.SetDefault("initial_equity_usd", 10000.0)

	v.SetDefault("strategy.volume_factor", 2.0)
	v.SetDefault("strategy.resistance_periods", 24)
	v.SetDefault("strategy.volume_lookback", 24)
	v.SetDefault("strategy.risk_reward_ratio", 3.0)
	v.SetDefault("strategy.stop_offset_pct", 1.0)
	v.SetDefault("strategy.position_size_usd", 100.0)

	v.SetDefault("risk.max_position_size_usd", 500.0)
	v.SetDefault("risk.max_daily_loss_usd", 50.0)
	v.SetDefault("risk.max_drawdown_pct", 10.0)
	v.SetDefault("risk.max_leverage", 5.0)

	v.SetDefault("order.lot_size", 0.001)
	v.SetDefault("order.timeout", "10s")
	v.SetDefault("order.store", "bunt")

	v.SetDefault("dydx.rest_url", "")
	v.SetDefault("dydx.ws_url", "")
	v.SetDefault("dydx.subaccount_number", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.colored", true)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if _, err := core.ParseTimeframe(c.Timeframe); err != nil {
		return fmt.Errorf("timeframe: %w", err)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := c.UpdateIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.OrderTimeoutDuration(); err != nil {
		return err
	}

	if c.Strategy.VolumeFactor <= 0 {
		return fmt.Errorf("strategy.volume_factor must be > 0")
	}
	if c.Strategy.ResistancePeriods <= 0 {
		return fmt.Errorf("strategy.resistance_periods must be > 0")
	}
	if c.Strategy.VolumeLookback <= 0 {
		return fmt.Errorf("strategy.volume_lookback must be > 0")
	}
	if c.Strategy.RiskRewardRatio <= 0 {
		return fmt.Errorf("strategy.risk_reward_ratio must be > 0")
	}
	if c.Strategy.StopOffsetPct <= 0 || c.Strategy.StopOffsetPct >= 100 {
		return fmt.Errorf("strategy.stop_offset_pct must be in (0, 100)")
	}
	if c.Strategy.PositionSizeUSD <= 0 {
		return fmt.Errorf("strategy.position_size_usd must be > 0")
	}

	if c.Risk.MaxPositionSizeUSD <= 0 {
		return fmt.Errorf("risk.max_position_size_usd must be > 0")
	}
	if c.Risk.MaxDailyLossUSD <= 0 {
		return fmt.Errorf("risk.max_daily_loss_usd must be > 0")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 100 {
		return fmt.Errorf("risk.max_drawdown_pct must be in (0, 100]")
	}
	if c.Risk.MaxLeverage <= 0 {
		return fmt.Errorf("risk.max_leverage must be > 0")
	}

	switch c.Order.Store {
	case "bunt", "sqlite":
	default:
		return fmt.Errorf("order.store must be \"bunt\" or \"sqlite\"")
	}

	if !c.SimulationMode {
		if c.Dydx.GatewayURL == "" {
			return fmt.Errorf("dydx.gateway_url is required when simulation_mode is false")
		}
		if c.Dydx.Address == "" {
			return fmt.Errorf("dydx.address is required when simulation_mode is false")
		}
	}
	if c.SimulationMode && c.InitialEquityUSD <= 0 {
		return fmt.Errorf("initial_equity_usd must be > 0 in simulation mode")
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled (set VOLBREAK_TELEGRAM_TOKEN)")
		}
		if len(c.Telegram.Users) == 0 {
			return fmt.Errorf("telegram.users is required when telegram.enabled")
		}
	}
	return nil
}

// ParsedTimeframe returns the validated candle granularity.
func (c *Config) ParsedTimeframe() core.Timeframe {
	tf, _ := core.ParseTimeframe(c.Timeframe)
	return tf
}

// UpdateIntervalDuration parses the control-loop period. Accepts
// extended forms like "1d12h" in addition to time.ParseDuration syntax.
func (c *Config) UpdateIntervalDuration() (time.Duration, error) {
	d, err := str2duration.ParseDuration(c.UpdateInterval)
	if err != nil {
		return 0, fmt.Errorf("update_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("update_interval must be > 0")
	}
	return d, nil
}

// OrderTimeoutDuration parses the live order fill timeout.
func (c *Config) OrderTimeoutDuration() (time.Duration, error) {
	d, err := str2duration.ParseDuration(c.Order.Timeout)
	if err != nil {
		return 0, fmt.Errorf("order.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("order.timeout must be > 0")
	}
	return d, nil
}
