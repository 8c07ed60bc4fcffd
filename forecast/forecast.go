package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/sartorproj/coincast/arima"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

// Strategy names a forecasting technique.
type Strategy string

const (
	TrendSeasonal  Strategy = "trend_seasonal"
	Autoregressive Strategy = "autoregressive"
)

// Validate rejects unknown strategies.
func (s Strategy) Validate() error {
	switch s {
	case TrendSeasonal, Autoregressive:
		return nil
	}
	return fmt.Errorf("%w: unknown forecast strategy %q", timeseries.ErrInvalidParameter, s)
}

const (
	// DefaultAROrder is the fixed autoregressive order; the integration order
	// follows the stationarity decision.
	DefaultAROrder = 5
	DefaultPeriod  = 7
	DefaultAlpha   = 0.05
)

// Forecaster is implemented by every strategy. Implementations forecast from
// the whole series they are given; windowing happens in Forecast.
type Forecaster interface {
	Name() Strategy
	Forecast(ctx context.Context, s *timeseries.Series, horizon int) (*Result, error)
}

// Request holds the parameters of one forecast.
type Request struct {
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	Horizon     int      `json:"horizon" yaml:"horizon"`
	TrainWindow int      `json:"train_window" yaml:"train_window"` // trailing points to train on, 0 for all
	Period      int      `json:"period" yaml:"period"`             // seasonal period, trend_seasonal only
	Alpha       float64  `json:"alpha" yaml:"alpha"`               // intervals cover 1-Alpha
	AROrder     int      `json:"ar_order" yaml:"ar_order"`         // autoregressive only
}

// DefaultRequest returns a 30 step autoregressive forecast over the full series.
func DefaultRequest() Request {
	return Request{
		Strategy: Autoregressive,
		Horizon:  30,
		Period:   DefaultPeriod,
		Alpha:    DefaultAlpha,
		AROrder:  DefaultAROrder,
	}
}

// Validate checks parameter ranges that do not depend on the data.
func (r Request) Validate() error {
	if err := r.Strategy.Validate(); err != nil {
		return err
	}
	if r.Horizon < 1 {
		return fmt.Errorf("%w: horizon must be positive, got %d", timeseries.ErrInvalidParameter, r.Horizon)
	}
	if r.TrainWindow < 0 {
		return fmt.Errorf("%w: training window must not be negative, got %d", timeseries.ErrInvalidParameter, r.TrainWindow)
	}
	if !(r.Alpha > 0 && r.Alpha < 1) {
		return fmt.Errorf("%w: alpha must be in (0, 1), got %g", timeseries.ErrInvalidParameter, r.Alpha)
	}
	if r.Strategy == TrendSeasonal && r.Period < 1 {
		return fmt.Errorf("%w: seasonal period must be positive, got %d", timeseries.ErrInvalidParameter, r.Period)
	}
	if r.Strategy == Autoregressive && r.AROrder < 1 {
		return fmt.Errorf("%w: autoregressive order must be positive, got %d", timeseries.ErrInvalidParameter, r.AROrder)
	}
	return nil
}

// New builds the Forecaster selected by the request.
func New(r Request) (Forecaster, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Strategy {
	case TrendSeasonal:
		return &TrendSeasonalModel{Period: r.Period, Alpha: r.Alpha}, nil
	default:
		return &AutoregressiveModel{Order: r.AROrder, Alpha: r.Alpha}, nil
	}
}

// Forecast trims s to the training window and runs the requested strategy.
func Forecast(ctx context.Context, s *timeseries.Series, r Request) (*Result, error) {
	return ForecastWith(ctx, s, r, nil)
}

// ForecastWith is Forecast with the stationarity decision for the prices of
// s already made. The autoregressive strategy reuses it when it trains on all
// of s; a shorter training window is tested on its own.
func ForecastWith(ctx context.Context, s *timeseries.Series, r Request, decision *stats.StationarityDecision) (*Result, error) {
	f, err := New(r)
	if err != nil {
		return nil, err
	}

	train := s
	if r.TrainWindow > 0 {
		if train, err = s.Window(r.TrainWindow); err != nil {
			return nil, err
		}
	}
	if ar, ok := f.(*AutoregressiveModel); ok && train.Len() == s.Len() {
		ar.Decision = decision
	}
	return f.Forecast(ctx, train, r.Horizon)
}

// Result has the same shape for every strategy so callers can render them
// interchangeably. Lower[i] <= Point[i] <= Upper[i] and the interval width
// never decreases with i.
type Result struct {
	Model     Strategy    `json:"model" yaml:"model"`
	Horizon   int         `json:"horizon" yaml:"horizon"`
	Times     []time.Time `json:"times" yaml:"times"`
	Point     []float64   `json:"point" yaml:"point"`
	Lower     []float64   `json:"lower" yaml:"lower"`
	Upper     []float64   `json:"upper" yaml:"upper"`
	Alpha     float64     `json:"alpha" yaml:"alpha"`
	TrainSize int         `json:"train_size" yaml:"train_size"`

	Components   *Components                 `json:"components,omitempty" yaml:"components,omitempty"`
	Diagnostics  *arima.Summary              `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Stationarity *stats.StationarityDecision `json:"stationarity,omitempty" yaml:"stationarity,omitempty"`
	Warning      string                      `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Width returns Upper[i] - Lower[i].
func (r *Result) Width(i int) float64 {
	return r.Upper[i] - r.Lower[i]
}

// newResult allocates a result whose timestamps continue the training
// series at its median spacing.
func newResult(model Strategy, train *timeseries.Series, horizon int, alpha float64) *Result {
	step := train.Step()
	last := train.Last().Time

	times := make([]time.Time, horizon)
	for h := range times {
		times[h] = last.Add(time.Duration(h+1) * step)
	}
	return &Result{
		Model:     model,
		Horizon:   horizon,
		Times:     times,
		Point:     make([]float64, horizon),
		Lower:     make([]float64, horizon),
		Upper:     make([]float64, horizon),
		Alpha:     alpha,
		TrainSize: train.Len(),
	}
}

func validateHorizon(horizon int) error {
	if horizon < 1 {
		return fmt.Errorf("%w: horizon must be positive, got %d", timeseries.ErrInvalidParameter, horizon)
	}
	return nil
}

func validateAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return fmt.Errorf("%w: alpha must be in (0, 1), got %g", timeseries.ErrInvalidParameter, alpha)
	}
	return nil
}
