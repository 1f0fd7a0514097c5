// Package config loads a run's parameters from a YAML file, with
// environment variables overriding select fields and sensible defaults
// filled in for everything else.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for one backtest run.
type Config struct {
	Base      BaseConfig      `yaml:"base"`
	Validator ValidatorConfig `yaml:"validator"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// BaseConfig controls the run's time window, account set, and matching
// policy.
type BaseConfig struct {
	StartDate string `yaml:"start_date"` // RFC3339 date, e.g. "2024-01-01"
	EndDate   string `yaml:"end_date"`

	MatchingType string   `yaml:"matching_type"` // CURRENT_BAR_CLOSE | NEXT_BAR_OPEN
	Frequency    string   `yaml:"frequency"`     // 1d | 1m | tick
	AccountList  []string `yaml:"account_list"`  // subset of STOCK, FUTURE

	StockStartingCash  string `yaml:"stock_starting_cash"`
	FutureStartingCash string `yaml:"future_starting_cash"`

	Benchmark   string `yaml:"benchmark"` // instrument id, or "" for none
	HandleSplit bool   `yaml:"handle_split"`

	// ReplaySeconds paces bar dispatch to wall-clock time when set;
	// zero runs the calendar as fast as possible.
	ReplaySeconds float64 `yaml:"replay_seconds"`
}

// ValidatorConfig controls matching-time order validation.
type ValidatorConfig struct {
	BarLimit                  bool    `yaml:"bar_limit"`
	CashReturnByStockDelisted bool    `yaml:"cash_return_by_stock_delisted"`
	VolumePercent             float64 `yaml:"volume_percent"`

	// T1ExemptInstruments overrides the hardcoded cross-border ETF
	// default with a data-driven set of instruments exempt from the
	// T+1 holding rule. Unset keeps the default.
	T1ExemptInstruments []string `yaml:"t1_exempt_instruments"`
}

// StorageConfig controls where a run's results are persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads path as YAML, applies any matching environment overrides,
// and fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
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

// StartDate parses Base.StartDate; a blank value returns the zero time.
func (c *Config) StartDate() (time.Time, error) {
	return parseDate(c.Base.StartDate)
}

// EndDate parses Base.EndDate; a blank value returns the zero time.
func (c *Config) EndDate() (time.Time, error) {
	return parseDate(c.Base.EndDate)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid date %q: %w", s, err)
	}
	return t, nil
}

// StockStartingCash parses Base.StockStartingCash as a decimal amount.
func (c *Config) StockStartingCash() (decimal.Decimal, error) {
	return parseDecimal(c.Base.StockStartingCash)
}

// FutureStartingCash parses Base.FutureStartingCash as a decimal amount.
func (c *Config) FutureStartingCash() (decimal.Decimal, error) {
	return parseDecimal(c.Base.FutureStartingCash)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ReplayRate converts Base.ReplaySeconds into an events-per-second rate
// limit, or zero (no pacing) when unset.
func (c *Config) ReplayRate() float64 {
	if c.Base.ReplaySeconds <= 0 {
		return 0
	}
	return 1.0 / c.Base.ReplaySeconds
}

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
}

func setDefaults(cfg *Config) {
	if cfg.Base.MatchingType == "" {
		cfg.Base.MatchingType = "CURRENT_BAR_CLOSE"
	}
	if cfg.Base.Frequency == "" {
		cfg.Base.Frequency = "1d"
	}
	if len(cfg.Base.AccountList) == 0 {
		cfg.Base.AccountList = []string{"STOCK"}
	}
	if cfg.Base.StockStartingCash == "" {
		cfg.Base.StockStartingCash = "1000000"
	}
	if cfg.Base.FutureStartingCash == "" {
		cfg.Base.FutureStartingCash = "1000000"
	}
	if cfg.Validator.VolumePercent <= 0 {
		cfg.Validator.VolumePercent = 0.25
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "backtrader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
