// Package analysis composes one analysis request out of the component calls
// in stats and forecast.
//
// Steps run sequentially, each under its own wall-clock budget. A step that
// fails, panics or runs out of time leaves its section empty and records the
// error; the other sections are still produced.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sartorproj/coincast/forecast"
	"github.com/sartorproj/coincast/marketdata"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

// SeriesInfo describes the input the report was computed from.
type SeriesInfo struct {
	Name   string           `json:"name" yaml:"name"`
	Points int              `json:"points" yaml:"points"`
	Start  time.Time        `json:"start" yaml:"start"`
	End    time.Time        `json:"end" yaml:"end"`
	Step   time.Duration    `json:"step" yaml:"step"`
	Gaps   []timeseries.Gap `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}

// Report is the structured result of one request. Sections whose step was
// not selected or failed are nil; failures are listed in Errors.
type Report struct {
	RequestID   string     `json:"request_id" yaml:"request_id"`
	Coin        string     `json:"coin" yaml:"coin"`
	Currency    string     `json:"currency" yaml:"currency"`
	GeneratedAt time.Time  `json:"generated_at" yaml:"generated_at"`
	Series      SeriesInfo `json:"series" yaml:"series"`

	Returns         *stats.ReturnsSeries        `json:"returns,omitempty" yaml:"returns,omitempty"`
	Volatility      *stats.RollingStat          `json:"volatility,omitempty" yaml:"volatility,omitempty"`
	Summary         *stats.ReturnStats          `json:"summary,omitempty" yaml:"summary,omitempty"`
	MovingAverages  []*stats.RollingStat        `json:"moving_averages,omitempty" yaml:"moving_averages,omitempty"`
	Stationarity    *stats.StationarityDecision `json:"stationarity,omitempty" yaml:"stationarity,omitempty"`
	Decomposition   *stats.DecompositionResult  `json:"decomposition,omitempty" yaml:"decomposition,omitempty"`
	Autocorrelation *stats.Correlogram          `json:"autocorrelation,omitempty" yaml:"autocorrelation,omitempty"`
	Forecast        *forecast.Result            `json:"forecast,omitempty" yaml:"forecast,omitempty"`

	Errors   map[Step]string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	errs map[Step]error
}

// Err returns the error recorded for a step, or nil.
func (r *Report) Err(step Step) error {
	return r.errs[step]
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	return len(r.errs) > 0
}

func (r *Report) fail(step Step, err error) {
	if r.errs == nil {
		r.errs = make(map[Step]error)
		r.Errors = make(map[Step]string)
	}
	r.errs[step] = err
	r.Errors[step] = err.Error()
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Analyzer runs requests. It holds no per-request state and may be reused.
type Analyzer struct {
	log zerolog.Logger
	now func() time.Time
}

// New returns an Analyzer logging to logger.
func New(logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		log: logger.With().Str("component", "analysis").Logger(),
		now: time.Now,
	}
}

// LoadSeries fetches the requested history from p, validates it and
// resamples it when the request asks for a regular grid.
func LoadSeries(ctx context.Context, p marketdata.Provider, req Request) (*timeseries.Series, error) {
	coinID := marketdata.CoinID(req.Coin)
	points, err := p.MarketChart(ctx, coinID, req.Currency, req.Days)
	if err != nil {
		return nil, err
	}
	s, err := timeseries.Build(points, timeseries.WithName(coinID+"/"+req.Currency))
	if err != nil {
		return nil, err
	}
	return Regularize(s, req)
}

// Regularize applies req.Resample to s. A zero step returns s unchanged.
func Regularize(s *timeseries.Series, req Request) (*timeseries.Series, error) {
	if req.Resample == 0 {
		return s, nil
	}
	if req.Resample < 0 {
		return nil, fmt.Errorf("%w: resample step must not be negative, got %s", timeseries.ErrInvalidParameter, req.Resample)
	}
	return s.Resample(req.Resample)
}

// Run executes the selected steps over s. The returned error is non-nil only
// when the request itself is invalid; step failures are recorded in the
// report.
func (a *Analyzer) Run(ctx context.Context, s *timeseries.Series, req Request) (*Report, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no series", timeseries.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RequestID:   uuid.New().String(),
		Coin:        req.Coin,
		Currency:    req.Currency,
		GeneratedAt: a.now().UTC(),
		Series: SeriesInfo{
			Name:   s.Name(),
			Points: s.Len(),
			Start:  s.First().Time,
			End:    s.Last().Time,
			Step:   s.Step(),
			Gaps:   s.Gaps(),
		},
	}
	if n := len(report.Series.Gaps); n > 0 {
		report.warn("series has %d gaps longer than its usual spacing", n)
	}

	logger := a.log.With().Str("request_id", report.RequestID).Str("series", s.Name()).Logger()
	logger.Info().Int("points", s.Len()).Int("steps", len(req.steps())).Msg("analysis started")
	start := a.now()

	shared := &sharedStationarity{series: s}
	for _, step := range req.steps() {
		stepStart := a.now()
		err := a.runStep(ctx, step, s, req, report, shared)
		event := logger.Info()
		if err != nil {
			report.fail(step, err)
			event = logger.Warn().Err(err)
		}
		event.Str("step", string(step)).Dur("duration", a.now().Sub(stepStart)).Msg("step finished")
	}

	logger.Info().
		Int("failed", len(report.errs)).
		Int("warnings", len(report.Warnings)).
		Dur("duration", a.now().Sub(start)).
		Msg("analysis finished")
	return report, nil
}

// sharedStationarity tests the prices of a run once so that every section
// reporting a differencing decision reports the same one. A step that times
// out mid-test leaves the next caller waiting on the same computation.
type sharedStationarity struct {
	series   *timeseries.Series
	once     sync.Once
	decision *stats.StationarityDecision
	err      error
}

func (st *sharedStationarity) get() (*stats.StationarityDecision, error) {
	st.once.Do(func() {
		st.decision, st.err = stats.Stationarize(st.series.Prices())
	})
	return st.decision, st.err
}

func (a *Analyzer) runStep(ctx context.Context, step Step, s *timeseries.Series, req Request, report *Report, shared *sharedStationarity) error {
	switch step {
	case StepReturns:
		r, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.ReturnsSeries, error) {
			return stats.Returns(s), nil
		})
		report.Returns = r
		return err

	case StepVolatility:
		v, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.RollingStat, error) {
			return stats.RollingVolatility(stats.Returns(s), req.VolatilityWindow, req.ReturnKind)
		})
		report.Volatility = v
		return err

	case StepSummary:
		sum, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.ReturnStats, error) {
			return stats.Summarize(stats.Returns(s), req.ReturnKind)
		})
		report.Summary = sum
		return err

	case StepMovingAverage:
		mas, err := budgeted(ctx, req.StepBudget, func(context.Context) ([]*stats.RollingStat, error) {
			if len(req.MAWindows) == 0 {
				return nil, fmt.Errorf("%w: no moving average windows", timeseries.ErrInvalidParameter)
			}
			out := make([]*stats.RollingStat, 0, len(req.MAWindows))
			for _, w := range req.MAWindows {
				ma, err := stats.MovingAverage(s, req.MAKind, w)
				if err != nil {
					return nil, err
				}
				out = append(out, ma)
			}
			return out, nil
		})
		report.MovingAverages = mas
		return err

	case StepStationarity:
		d, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.StationarityDecision, error) {
			return shared.get()
		})
		if d != nil && d.Warning != "" {
			report.warn("stationarity: %s", d.Warning)
		}
		report.Stationarity = d
		return err

	case StepDecomposition:
		d, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.DecompositionResult, error) {
			return stats.Decompose(s, req.DecompositionModel, req.DecompositionPeriod)
		})
		report.Decomposition = d
		return err

	case StepAutocorrelation:
		c, err := budgeted(ctx, req.StepBudget, func(context.Context) (*stats.Correlogram, error) {
			if req.ACFTarget != stats.PriceTarget {
				return stats.Autocorrelation(s, req.ACFTarget, req.MaxLag, req.ACFAlpha)
			}
			d, err := shared.get()
			if err != nil {
				return nil, err
			}
			return stats.AutocorrelationWith(s, req.ACFTarget, req.MaxLag, req.ACFAlpha, d)
		})
		if c != nil && c.Stationarity != nil && c.Stationarity.Warning != "" && report.Stationarity == nil {
			report.warn("autocorrelation: %s", c.Stationarity.Warning)
		}
		report.Autocorrelation = c
		return err

	case StepForecast:
		var full *stats.StationarityDecision
		f, err := budgeted(ctx, req.StepBudget, func(ctx context.Context) (*forecast.Result, error) {
			if req.Forecast.Strategy != forecast.Autoregressive {
				return forecast.Forecast(ctx, s, req.Forecast)
			}
			// The full-series decision is still needed when a training
			// window is tested on its own, to flag a disagreement.
			full, _ = shared.get()
			return forecast.ForecastWith(ctx, s, req.Forecast, full)
		})
		if f != nil && f.Warning != "" {
			report.warn("forecast: %s", f.Warning)
		}
		if f != nil && full != nil && f.Stationarity != nil && f.Stationarity.Order() != full.Order() {
			report.warn("forecast: training window of %d points differenced %d times, full series %d times",
				f.TrainSize, f.Stationarity.Order(), full.Order())
		}
		report.Forecast = f
		return err
	}
	return fmt.Errorf("%w: unknown step %q", timeseries.ErrInvalidParameter, step)
}

// budgeted runs fn under a deadline of budget. fn runs on its own goroutine
// so that a call which never observes ctx still returns ErrTimeout on time;
// its late result is discarded. Panics in fn are returned as errors.
func budgeted[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	stepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := stepCtx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %v", timeseries.ErrTimeout, err)
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(stepCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return zero, asTimeout(out.err)
		}
		return out.value, nil
	case <-stepCtx.Done():
		return zero, fmt.Errorf("%w: step exceeded %s", timeseries.ErrTimeout, budget)
	}
}

// asTimeout maps bare context errors onto ErrTimeout.
func asTimeout(err error) error {
	if errors.Is(err, timeseries.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", timeseries.ErrTimeout, err)
	}
	return err
}
