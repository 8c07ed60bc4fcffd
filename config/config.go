// Package config loads coincast settings from a YAML file and the
// environment, and turns them into an analysis request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sartorproj/coincast/analysis"
	"github.com/sartorproj/coincast/forecast"
	"github.com/sartorproj/coincast/stats"
)

// Config holds all application configuration.
type Config struct {
	Data struct {
		Dir      string        `yaml:"dir"`
		Coin     string        `yaml:"coin"`
		Currency string        `yaml:"currency"`
		Days     int           `yaml:"days"`
		Resample time.Duration `yaml:"resample"`
	} `yaml:"data"`
	Smoothing struct {
		Kind    string `yaml:"kind"`
		Windows []int  `yaml:"windows"`
	} `yaml:"smoothing"`
	Returns struct {
		Kind             string `yaml:"kind"`
		VolatilityWindow int    `yaml:"volatility_window"`
	} `yaml:"returns"`
	Decomposition struct {
		Model  string `yaml:"model"`
		Period int    `yaml:"period"`
	} `yaml:"decomposition"`
	Autocorrelation struct {
		Target string  `yaml:"target"`
		MaxLag int     `yaml:"max_lag"`
		Alpha  float64 `yaml:"alpha"`
	} `yaml:"autocorrelation"`
	Forecast struct {
		Strategy    string  `yaml:"strategy"`
		Horizon     int     `yaml:"horizon"`
		TrainWindow int     `yaml:"train_window"`
		Period      int     `yaml:"period"`
		Alpha       float64 `yaml:"alpha"`
		AROrder     int     `yaml:"ar_order"`
	} `yaml:"forecast"`
	StepBudget time.Duration `yaml:"step_budget"`
	LogLevel   string        `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Environment variable overrides
func (c *Config) applyEnv() error {
	if v := os.Getenv("COINCAST_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("COINCAST_COIN"); v != "" {
		c.Data.Coin = v
	}
	if v := os.Getenv("COINCAST_CURRENCY"); v != "" {
		c.Data.Currency = v
	}
	if v := os.Getenv("COINCAST_FORECAST_STRATEGY"); v != "" {
		c.Forecast.Strategy = v
	}
	if v := os.Getenv("COINCAST_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"COINCAST_DAYS", &c.Data.Days},
		{"COINCAST_FORECAST_HORIZON", &c.Forecast.Horizon},
		{"COINCAST_FORECAST_TRAIN_WINDOW", &c.Forecast.TrainWindow},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"COINCAST_RESAMPLE", &c.Data.Resample},
		{"COINCAST_STEP_BUDGET", &c.StepBudget},
	}
	for _, e := range durations {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = d
	}
	return nil
}

// Defaults
func (c *Config) applyDefaults() {
	def := analysis.DefaultRequest()

	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.Coin == "" {
		c.Data.Coin = def.Coin
	}
	if c.Data.Currency == "" {
		c.Data.Currency = def.Currency
	}
	if c.Data.Days == 0 {
		c.Data.Days = def.Days
	}
	if c.Smoothing.Kind == "" {
		c.Smoothing.Kind = string(def.MAKind)
	}
	if len(c.Smoothing.Windows) == 0 {
		c.Smoothing.Windows = def.MAWindows
	}
	if c.Returns.Kind == "" {
		c.Returns.Kind = string(def.ReturnKind)
	}
	if c.Returns.VolatilityWindow == 0 {
		c.Returns.VolatilityWindow = def.VolatilityWindow
	}
	if c.Decomposition.Model == "" {
		c.Decomposition.Model = string(def.DecompositionModel)
	}
	if c.Decomposition.Period == 0 {
		c.Decomposition.Period = def.DecompositionPeriod
	}
	if c.Autocorrelation.Target == "" {
		c.Autocorrelation.Target = string(def.ACFTarget)
	}
	if c.Autocorrelation.MaxLag == 0 {
		c.Autocorrelation.MaxLag = def.MaxLag
	}
	if c.Autocorrelation.Alpha == 0 {
		c.Autocorrelation.Alpha = def.ACFAlpha
	}
	if c.Forecast.Strategy == "" {
		c.Forecast.Strategy = string(def.Forecast.Strategy)
	}
	if c.Forecast.Horizon == 0 {
		c.Forecast.Horizon = def.Forecast.Horizon
	}
	if c.Forecast.Period == 0 {
		c.Forecast.Period = def.Forecast.Period
	}
	if c.Forecast.Alpha == 0 {
		c.Forecast.Alpha = def.Forecast.Alpha
	}
	if c.Forecast.AROrder == 0 {
		c.Forecast.AROrder = def.Forecast.AROrder
	}
	if c.StepBudget == 0 {
		c.StepBudget = def.StepBudget
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks every setting that can be judged without data.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.Resample < 0 {
		return fmt.Errorf("data.resample must not be negative, got %s", c.Data.Resample)
	}
	switch stats.MAKind(c.Smoothing.Kind) {
	case stats.SMAKind, stats.EMAKind:
	default:
		return fmt.Errorf("smoothing.kind must be sma or ema, got %q", c.Smoothing.Kind)
	}
	for _, w := range c.Smoothing.Windows {
		if w < 1 {
			return fmt.Errorf("smoothing.windows must be positive, got %d", w)
		}
	}
	if err := stats.ReturnKind(c.Returns.Kind).Validate(); err != nil {
		return fmt.Errorf("returns.kind: %w", err)
	}
	if c.Returns.VolatilityWindow < 2 {
		return fmt.Errorf("returns.volatility_window must be at least 2")
	}
	switch stats.DecompositionModel(c.Decomposition.Model) {
	case stats.Additive, stats.Multiplicative:
	default:
		return fmt.Errorf("decomposition.model must be additive or multiplicative, got %q", c.Decomposition.Model)
	}
	if c.Decomposition.Period < 1 {
		return fmt.Errorf("decomposition.period must be positive")
	}
	if err := stats.Target(c.Autocorrelation.Target).Validate(); err != nil {
		return fmt.Errorf("autocorrelation.target: %w", err)
	}
	if c.Autocorrelation.MaxLag < 1 {
		return fmt.Errorf("autocorrelation.max_lag must be positive")
	}
	if !(c.Autocorrelation.Alpha > 0 && c.Autocorrelation.Alpha < 1) {
		return fmt.Errorf("autocorrelation.alpha must be in (0, 1)")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	req := c.Request()
	if err := req.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	return req.Validate()
}

// Request converts the configuration into an analysis request.
func (c *Config) Request() analysis.Request {
	windows := make([]int, len(c.Smoothing.Windows))
	copy(windows, c.Smoothing.Windows)

	return analysis.Request{
		Coin:                c.Data.Coin,
		Currency:            c.Data.Currency,
		Days:                c.Data.Days,
		Resample:            c.Data.Resample,
		MAKind:              stats.MAKind(c.Smoothing.Kind),
		MAWindows:           windows,
		VolatilityWindow:    c.Returns.VolatilityWindow,
		ReturnKind:          stats.ReturnKind(c.Returns.Kind),
		DecompositionModel:  stats.DecompositionModel(c.Decomposition.Model),
		DecompositionPeriod: c.Decomposition.Period,
		ACFTarget:           stats.Target(c.Autocorrelation.Target),
		MaxLag:              c.Autocorrelation.MaxLag,
		ACFAlpha:            c.Autocorrelation.Alpha,
		Forecast: forecast.Request{
			Strategy:    forecast.Strategy(c.Forecast.Strategy),
			Horizon:     c.Forecast.Horizon,
			TrainWindow: c.Forecast.TrainWindow,
			Period:      c.Forecast.Period,
			Alpha:       c.Forecast.Alpha,
			AROrder:     c.Forecast.AROrder,
		},
		StepBudget: c.StepBudget,
	}
}
