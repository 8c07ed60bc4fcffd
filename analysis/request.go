package analysis

import (
	"fmt"
	"time"

	"github.com/sartorproj/coincast/forecast"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

// Step names one section of a report.
type Step string

const (
	StepReturns         Step = "returns"
	StepVolatility      Step = "volatility"
	StepSummary         Step = "summary"
	StepMovingAverage   Step = "moving_average"
	StepStationarity    Step = "stationarity"
	StepDecomposition   Step = "decomposition"
	StepAutocorrelation Step = "autocorrelation"
	StepForecast        Step = "forecast"
)

// AllSteps lists every step in execution order.
var AllSteps = []Step{
	StepReturns,
	StepVolatility,
	StepSummary,
	StepMovingAverage,
	StepStationarity,
	StepDecomposition,
	StepAutocorrelation,
	StepForecast,
}

// Validate rejects unknown steps.
func (s Step) Validate() error {
	for _, known := range AllSteps {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown step %q", timeseries.ErrInvalidParameter, s)
}

// DefaultStepBudget bounds a single step when the request leaves it unset.
const DefaultStepBudget = 30 * time.Second

// Request carries every user choice for one analysis run. Nothing in the
// core reads global state; the presentation layer fills this in.
type Request struct {
	Coin     string `json:"coin" yaml:"coin"`
	Currency string `json:"currency" yaml:"currency"`
	Days     int    `json:"days" yaml:"days"` // history to request, 0 for all

	// Resample puts the loaded series on a regular grid of this step,
	// carrying the last price forward over gaps. Zero keeps the raw spacing.
	Resample time.Duration `json:"resample,omitempty" yaml:"resample,omitempty"`

	MAKind    stats.MAKind `json:"ma_kind" yaml:"ma_kind"`
	MAWindows []int        `json:"ma_windows" yaml:"ma_windows"`

	VolatilityWindow int              `json:"volatility_window" yaml:"volatility_window"`
	ReturnKind       stats.ReturnKind `json:"return_kind" yaml:"return_kind"`

	DecompositionModel  stats.DecompositionModel `json:"decomposition_model" yaml:"decomposition_model"`
	DecompositionPeriod int                      `json:"decomposition_period" yaml:"decomposition_period"`

	ACFTarget stats.Target `json:"acf_target" yaml:"acf_target"`
	MaxLag    int          `json:"max_lag" yaml:"max_lag"`
	ACFAlpha  float64      `json:"acf_alpha" yaml:"acf_alpha"`

	Forecast forecast.Request `json:"forecast" yaml:"forecast"`

	// Steps restricts the run to a subset; empty runs all of them.
	Steps      []Step        `json:"steps,omitempty" yaml:"steps,omitempty"`
	StepBudget time.Duration `json:"step_budget" yaml:"step_budget"`
}

// DefaultRequest returns the dashboard defaults for bitcoin priced in USD.
func DefaultRequest() Request {
	return Request{
		Coin:                "bitcoin",
		Currency:            "usd",
		Days:                365,
		MAKind:              stats.SMAKind,
		MAWindows:           []int{7, 30},
		VolatilityWindow:    30,
		ReturnKind:          stats.LogReturn,
		DecompositionModel:  stats.Additive,
		DecompositionPeriod: 7,
		ACFTarget:           stats.PriceTarget,
		MaxLag:              40,
		ACFAlpha:            0.05,
		Forecast:            forecast.DefaultRequest(),
		StepBudget:          DefaultStepBudget,
	}
}

// Validate checks the orchestration parameters. Component parameters are
// validated by the components themselves so that one bad choice fails only
// its own section.
func (r Request) Validate() error {
	if r.Coin == "" {
		return fmt.Errorf("%w: coin is required", timeseries.ErrInvalidParameter)
	}
	if r.Currency == "" {
		return fmt.Errorf("%w: currency is required", timeseries.ErrInvalidParameter)
	}
	if r.Days < 0 {
		return fmt.Errorf("%w: days must not be negative, got %d", timeseries.ErrInvalidParameter, r.Days)
	}
	if r.Resample < 0 {
		return fmt.Errorf("%w: resample step must not be negative, got %s", timeseries.ErrInvalidParameter, r.Resample)
	}
	if r.StepBudget <= 0 {
		return fmt.Errorf("%w: step budget must be positive, got %s", timeseries.ErrInvalidParameter, r.StepBudget)
	}
	for _, s := range r.Steps {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// steps returns the selected steps in execution order.
func (r Request) steps() []Step {
	if len(r.Steps) == 0 {
		return AllSteps
	}
	selected := make(map[Step]bool, len(r.Steps))
	for _, s := range r.Steps {
		selected[s] = true
	}
	out := make([]Step, 0, len(selected))
	for _, s := range AllSteps {
		if selected[s] {
			out = append(out, s)
		}
	}
	return out
}
