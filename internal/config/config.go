// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/session"
	"github.com/tuanle/tickersim/internal/types"
	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Market      MarketConfig      `yaml:"market"`
	Session     SessionConfig     `yaml:"session"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MarketConfig holds simulation settings.
type MarketConfig struct {
	TickIntervalMs int                `yaml:"tick_interval_ms"`
	HistoryWindow  int                `yaml:"history_window"`
	Seed           int64              `yaml:"seed"` // 0 seeds from the clock
	Instruments    []InstrumentConfig `yaml:"instruments"`
}

// InstrumentConfig seeds one instrument.
type InstrumentConfig struct {
	Symbol     string  `yaml:"symbol"`
	Price      float64 `yaml:"price"`
	Volatility float64 `yaml:"volatility"`
}

// SessionConfig holds per-session settings.
type SessionConfig struct {
	StartingCash    float64 `yaml:"starting_cash"`
	OrdersPerSecond float64 `yaml:"orders_per_second"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// PersistenceConfig holds trade journal settings.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ShutdownConfig holds shutdown settings.
type ShutdownConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// Default returns the reference configuration: five seeded instruments,
// a 2000 ms tick, a 20-point history window and 10000 starting cash.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":3000"},
		Market: MarketConfig{
			TickIntervalMs: 2000,
			HistoryWindow:  20,
			Instruments: []InstrumentConfig{
				{Symbol: "TSLA", Price: 200.00, Volatility: 1.2},
				{Symbol: "AAPL", Price: 150.00, Volatility: 0.8},
				{Symbol: "BTC", Price: 45000.00, Volatility: 50.0},
				{Symbol: "ETH", Price: 3000.00, Volatility: 15.0},
				{Symbol: "GOOGL", Price: 2800.00, Volatility: 2.5},
			},
		},
		Session: SessionConfig{
			StartingCash:    10000,
			OrdersPerSecond: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Persistence: PersistenceConfig{
			Enabled: false,
			Path:    "tickersim.db",
		},
		Shutdown: ShutdownConfig{TimeoutSec: 10},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}

	if c.Market.TickIntervalMs <= 0 {
		errs = append(errs, "market.tick_interval_ms must be positive")
	}
	if c.Market.HistoryWindow <= 0 {
		errs = append(errs, "market.history_window must be positive")
	}
	if len(c.Market.Instruments) == 0 {
		errs = append(errs, "market.instruments must not be empty")
	}

	seen := make(map[string]bool)
	for i, inst := range c.Market.Instruments {
		if inst.Symbol == "" {
			errs = append(errs, fmt.Sprintf("market.instruments[%d].symbol is required", i))
			continue
		}
		if seen[inst.Symbol] {
			errs = append(errs, fmt.Sprintf("market.instruments[%d]: duplicate symbol %q", i, inst.Symbol))
		}
		seen[inst.Symbol] = true
		if inst.Price <= 0 {
			errs = append(errs, fmt.Sprintf("market.instruments[%d] (%s): price must be positive", i, inst.Symbol))
		}
		if inst.Volatility < 0 {
			errs = append(errs, fmt.Sprintf("market.instruments[%d] (%s): volatility must not be negative", i, inst.Symbol))
		}
	}

	if c.Session.StartingCash <= 0 {
		errs = append(errs, "session.starting_cash must be positive")
	}
	if c.Session.OrdersPerSecond < 0 {
		errs = append(errs, "session.orders_per_second must not be negative")
	}

	if c.Persistence.Enabled && c.Persistence.Path == "" {
		errs = append(errs, "persistence.path is required when persistence is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// TickInterval returns the simulation tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Market.TickIntervalMs) * time.Millisecond
}

// ShutdownTimeout returns the shutdown timeout duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSec) * time.Second
}

// ToMarketConfig converts to market.Config.
func (c *Config) ToMarketConfig() market.Config {
	instruments := make([]market.InstrumentConfig, 0, len(c.Market.Instruments))
	for _, inst := range c.Market.Instruments {
		instruments = append(instruments, market.InstrumentConfig{
			Symbol:     inst.Symbol,
			Price:      decimal.NewFromFloat(inst.Price),
			Volatility: decimal.NewFromFloat(inst.Volatility),
		})
	}

	return market.Config{
		HistoryWindow: c.Market.HistoryWindow,
		TickInterval:  c.TickInterval(),
		Instruments:   instruments,
		Seed:          c.Market.Seed,
	}
}

// ToSessionConfig converts to session.Config.
func (c *Config) ToSessionConfig() session.Config {
	return session.Config{
		StartingCash:    decimal.NewFromFloat(c.Session.StartingCash),
		OrdersPerSecond: c.Session.OrdersPerSecond,
	}
}
