package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/sartorproj/coincast/timeseries"
)

// ReturnKind selects simple or logarithmic returns.
type ReturnKind string

const (
	SimpleReturn ReturnKind = "simple"
	LogReturn    ReturnKind = "log"
)

// Validate rejects unknown kinds.
func (k ReturnKind) Validate() error {
	switch k {
	case SimpleReturn, LogReturn:
		return nil
	}
	return fmt.Errorf("%w: unknown return kind %q", timeseries.ErrInvalidParameter, k)
}

// ReturnPoint is the return realised at Time relative to the previous point.
type ReturnPoint struct {
	Time   time.Time `json:"time" yaml:"time"`
	Simple float64   `json:"simple" yaml:"simple"`
	Log    float64   `json:"log" yaml:"log"`
}

// ReturnsSeries holds one return per price after the first.
type ReturnsSeries struct {
	Points []ReturnPoint `json:"points" yaml:"points"`
}

// Len returns the number of returns.
func (r *ReturnsSeries) Len() int {
	return len(r.Points)
}

// Values returns the chosen kind of return as a slice.
func (r *ReturnsSeries) Values(kind ReturnKind) []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		if kind == LogReturn {
			out[i] = p.Log
		} else {
			out[i] = p.Simple
		}
	}
	return out
}

// Returns derives simple and log returns from a series.
// The first price has no return, so the result is one point shorter.
func Returns(s *timeseries.Series) *ReturnsSeries {
	prices := s.Prices()
	times := s.Times()

	points := make([]ReturnPoint, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		ratio := prices[i] / prices[i-1]
		points[i-1] = ReturnPoint{
			Time:   times[i],
			Simple: ratio - 1,
			Log:    math.Log(ratio),
		}
	}
	return &ReturnsSeries{Points: points}
}

// RollingStat is a trailing-window statistic aligned with its input.
// Positions before the window fills are missing.
type RollingStat struct {
	Window  int                 `json:"window" yaml:"window"`
	Kind    string              `json:"kind" yaml:"kind"`
	Samples []timeseries.Sample `json:"samples" yaml:"samples"`
}

// Len returns the number of aligned samples.
func (r *RollingStat) Len() int {
	return len(r.Samples)
}

// Latest returns the last valid sample, if any.
func (r *RollingStat) Latest() (timeseries.Sample, bool) {
	for i := len(r.Samples) - 1; i >= 0; i-- {
		if r.Samples[i].Valid {
			return r.Samples[i], true
		}
	}
	return timeseries.Sample{}, false
}

// RollingVolatility computes the sample standard deviation of returns over
// a trailing window.
func RollingVolatility(r *ReturnsSeries, window int, kind ReturnKind) (*RollingStat, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if window < 2 {
		return nil, fmt.Errorf("%w: volatility window must be at least 2, got %d", timeseries.ErrInvalidParameter, window)
	}
	if window > r.Len() {
		return nil, fmt.Errorf("%w: volatility window %d exceeds %d returns", timeseries.ErrInsufficientData, window, r.Len())
	}

	values := r.Values(kind)
	std := volatility.NewMovingStdWithPeriod[float64](window)
	stds := helper.ChanToSlice(std.Compute(helper.SliceToChan(values)))

	// MovingStd divides by the window; rescale to the n-1 sample estimate.
	ddof := math.Sqrt(float64(window) / float64(window-1))
	offset := len(values) - len(stds)
	samples := make([]timeseries.Sample, len(values))
	for i, p := range r.Points {
		if i < offset {
			samples[i] = timeseries.Missing(p.Time)
			continue
		}
		samples[i] = timeseries.Present(p.Time, stds[i-offset]*ddof)
	}

	return &RollingStat{
		Window:  window,
		Kind:    "volatility_" + string(kind),
		Samples: samples,
	}, nil
}

// ReturnStats summarises a return distribution.
type ReturnStats struct {
	Kind       ReturnKind `json:"kind" yaml:"kind"`
	Count      int        `json:"count" yaml:"count"`
	Mean       float64    `json:"mean" yaml:"mean"`
	Std        float64    `json:"std" yaml:"std"`
	Min        float64    `json:"min" yaml:"min"`
	Q25        float64    `json:"q25" yaml:"q25"`
	Median     float64    `json:"median" yaml:"median"`
	Q75        float64    `json:"q75" yaml:"q75"`
	Max        float64    `json:"max" yaml:"max"`
	Cumulative float64    `json:"cumulative" yaml:"cumulative"` // total simple return over the range
}

// Summarize computes descriptive statistics over all returns.
func Summarize(r *ReturnsSeries, kind ReturnKind) (*ReturnStats, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if r.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 returns, got %d", timeseries.ErrInsufficientData, r.Len())
	}

	values := r.Values(kind)
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	logSum := 0.0
	for _, p := range r.Points {
		logSum += p.Log
	}

	return &ReturnStats{
		Kind:       kind,
		Count:      len(values),
		Mean:       mean(values),
		Std:        math.Sqrt(sampleVariance(values)),
		Min:        sorted[0],
		Q25:        quantile(sorted, 0.25),
		Median:     quantile(sorted, 0.5),
		Q75:        quantile(sorted, 0.75),
		Max:        sorted[len(sorted)-1],
		Cumulative: math.Exp(logSum) - 1,
	}, nil
}

// quantile interpolates linearly between order statistics of sorted data.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
