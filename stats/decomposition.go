package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/sartorproj/coincast/timeseries"
)

// DecompositionModel selects how components combine.
type DecompositionModel string

const (
	Additive       DecompositionModel = "additive"       // Y = T + S + R
	Multiplicative DecompositionModel = "multiplicative" // Y = T * S * R
)

// DecompositionResult holds trend, seasonal and residual components aligned
// index-for-index with the input. Trend and residual are missing where the
// centered moving average window does not fit.
type DecompositionResult struct {
	Model    DecompositionModel  `json:"model" yaml:"model"`
	Period   int                 `json:"period" yaml:"period"`
	Trend    []timeseries.Sample `json:"trend" yaml:"trend"`
	Seasonal []timeseries.Sample `json:"seasonal" yaml:"seasonal"`
	Residual []timeseries.Sample `json:"residual" yaml:"residual"`
	// Pattern is the seasonal index per phase (i mod Period).
	Pattern []float64 `json:"pattern" yaml:"pattern"`
	// SeasonalStrength is max(0, 1 - Var(R)/Var(S+R)).
	SeasonalStrength float64 `json:"seasonal_strength" yaml:"seasonal_strength"`
}

// Decompose performs classical seasonal decomposition of a price series.
func Decompose(s *timeseries.Series, model DecompositionModel, period int) (*DecompositionResult, error) {
	return DecomposeValues(s.Times(), s.Prices(), model, period)
}

// DecomposeValues decomposes arbitrary values, e.g. returns or differenced
// prices. It needs at least two full cycles; the multiplicative model is
// undefined for values <= 0.
func DecomposeValues(times []time.Time, values []float64, model DecompositionModel, period int) (*DecompositionResult, error) {
	n := len(values)
	if len(times) != n {
		return nil, fmt.Errorf("%w: %d timestamps for %d values", timeseries.ErrValidation, len(times), n)
	}
	if model != Additive && model != Multiplicative {
		return nil, fmt.Errorf("%w: unknown decomposition model %q", timeseries.ErrInvalidParameter, model)
	}
	if period < 1 {
		return nil, fmt.Errorf("%w: period must be positive, got %d", timeseries.ErrInvalidParameter, period)
	}
	if n < 2*period {
		return nil, fmt.Errorf("%w: decomposition with period %d needs %d points, got %d",
			timeseries.ErrInsufficientData, period, 2*period, n)
	}
	if model == Multiplicative {
		for i, v := range values {
			if v <= 0 {
				return nil, fmt.Errorf("%w: multiplicative decomposition needs positive values, index %d is %g",
					timeseries.ErrInvalidDomain, i, v)
			}
		}
	}

	trend := centeredMovingAverage(values, period)

	// Detrend, then average each phase of the cycle.
	pattern := make([]float64, period)
	counts := make([]int, period)
	for i := 0; i < n; i++ {
		if !trend[i].Valid {
			continue
		}
		var detrended float64
		if model == Multiplicative {
			detrended = values[i] / trend[i].Value
		} else {
			detrended = values[i] - trend[i].Value
		}
		pattern[i%period] += detrended
		counts[i%period]++
	}
	for i := range pattern {
		if counts[i] > 0 {
			pattern[i] /= float64(counts[i])
		}
	}

	// Normalize: zero sum for additive, unit mean for multiplicative.
	m := mean(pattern)
	for i := range pattern {
		if model == Multiplicative {
			pattern[i] /= m
		} else {
			pattern[i] -= m
		}
	}

	seasonal := make([]timeseries.Sample, n)
	residual := make([]timeseries.Sample, n)
	for i := 0; i < n; i++ {
		s := pattern[i%period]
		seasonal[i] = timeseries.Present(times[i], s)
		if !trend[i].Valid {
			residual[i] = timeseries.Missing(times[i])
			continue
		}
		if model == Multiplicative {
			residual[i] = timeseries.Present(times[i], values[i]/(trend[i].Value*s))
		} else {
			residual[i] = timeseries.Present(times[i], values[i]-trend[i].Value-s)
		}
	}
	for i := range trend {
		trend[i].Time = times[i]
	}

	return &DecompositionResult{
		Model:            model,
		Period:           period,
		Trend:            trend,
		Seasonal:         seasonal,
		Residual:         residual,
		Pattern:          pattern,
		SeasonalStrength: seasonalStrength(seasonal, residual, model),
	}, nil
}

// Reconstruct recombines the components at index i. ok is false where the
// trend is missing.
func (d *DecompositionResult) Reconstruct(i int) (float64, bool) {
	if !d.Trend[i].Valid || !d.Residual[i].Valid {
		return 0, false
	}
	if d.Model == Multiplicative {
		return d.Trend[i].Value * d.Seasonal[i].Value * d.Residual[i].Value, true
	}
	return d.Trend[i].Value + d.Seasonal[i].Value + d.Residual[i].Value, true
}

// centeredMovingAverage uses a simple centered window for odd periods and a
// 2xm average (half weight at both ends) for even periods.
func centeredMovingAverage(values []float64, period int) []timeseries.Sample {
	n := len(values)
	out := make([]timeseries.Sample, n)
	half := period / 2

	for i := half; i < n-half; i++ {
		sum := 0.0
		if period%2 == 0 {
			sum += values[i-half] * 0.5
			sum += values[i+half] * 0.5
			for j := i - half + 1; j < i+half; j++ {
				sum += values[j]
			}
		} else {
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
		}
		out[i] = timeseries.Sample{Value: sum / float64(period), Valid: true}
	}
	return out
}

// seasonalStrength measures how much of the detrended variation the seasonal
// component explains. Multiplicative components are compared on log scale.
func seasonalStrength(seasonal, residual []timeseries.Sample, model DecompositionModel) float64 {
	var rs, srs []float64
	for i := range residual {
		if !residual[i].Valid {
			continue
		}
		s, r := seasonal[i].Value, residual[i].Value
		if model == Multiplicative {
			s, r = math.Log(s), math.Log(r)
		}
		rs = append(rs, r)
		srs = append(srs, s+r)
	}
	if len(rs) < 2 {
		return 0
	}

	varSR := sampleVariance(srs)
	if varSR == 0 || math.IsNaN(varSR) {
		return 0
	}
	return math.Max(0, 1-sampleVariance(rs)/varSR)
}
