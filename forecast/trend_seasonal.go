package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

// TrendSeasonalModel fits price = a + b*t + S[t mod Period] + e by least
// squares: a linear trend, then phase means of the detrended prices.
type TrendSeasonalModel struct {
	Period int
	Alpha  float64
}

// Components exposes the fitted and extrapolated parts of the model, aligned
// with Times (the training timestamps followed by the forecast ones).
type Components struct {
	Times     []time.Time `json:"times" yaml:"times"`
	Trend     []float64   `json:"trend" yaml:"trend"`
	Seasonal  []float64   `json:"seasonal" yaml:"seasonal"`
	Pattern   []float64   `json:"pattern" yaml:"pattern"`
	Intercept float64     `json:"intercept" yaml:"intercept"`
	Slope     float64     `json:"slope" yaml:"slope"` // price change per step
	Sigma     float64     `json:"sigma" yaml:"sigma"`
}

func (m *TrendSeasonalModel) Name() Strategy { return TrendSeasonal }

// Forecast needs two full seasonal cycles. The interval at step h is the
// regression prediction interval z*sigma*sqrt(1 + 1/n + (x_h-mean)^2/Sxx),
// which widens as x_h moves away from the training data.
func (m *TrendSeasonalModel) Forecast(ctx context.Context, s *timeseries.Series, horizon int) (*Result, error) {
	if err := validateHorizon(horizon); err != nil {
		return nil, err
	}
	if err := validateAlpha(m.Alpha); err != nil {
		return nil, err
	}
	if m.Period < 1 {
		return nil, fmt.Errorf("%w: seasonal period must be positive, got %d", timeseries.ErrInvalidParameter, m.Period)
	}

	prices := s.Prices()
	n := len(prices)
	period := m.Period
	if n < 2*period {
		return nil, fmt.Errorf("%w: trend_seasonal with period %d needs %d training points, got %d",
			timeseries.ErrInsufficientData, period, 2*period, n)
	}
	dof := n - 2 - (period - 1)
	if dof < 1 {
		return nil, fmt.Errorf("%w: trend_seasonal with period %d leaves no residual degrees of freedom on %d points",
			timeseries.ErrInsufficientData, period, n)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", timeseries.ErrTimeout, err)
	}

	x := make([][]float64, n)
	for i := range x {
		x[i] = []float64{1, float64(i)}
	}
	reg, err := stats.OLS(x, prices)
	if err != nil {
		return nil, fmt.Errorf("%w: trend regression: %v", timeseries.ErrModelFit, err)
	}
	a, b := reg.Coeffs[0], reg.Coeffs[1]

	pattern := make([]float64, period)
	counts := make([]int, period)
	for i, p := range prices {
		pattern[i%period] += p - (a + b*float64(i))
		counts[i%period]++
	}
	centre := 0.0
	for k := range pattern {
		pattern[k] /= float64(counts[k])
		centre += pattern[k]
	}
	centre /= float64(period)
	for k := range pattern {
		pattern[k] -= centre
	}

	sse := 0.0
	for i, p := range prices {
		r := p - (a + b*float64(i) + pattern[i%period])
		sse += r * r
	}
	sigma := math.Sqrt(sse / float64(dof))

	xBar := float64(n-1) / 2
	sxx := 0.0
	for i := 0; i < n; i++ {
		d := float64(i) - xBar
		sxx += d * d
	}

	res := newResult(TrendSeasonal, s, horizon, m.Alpha)
	z := stats.CriticalZ(m.Alpha)
	for h := 0; h < horizon; h++ {
		xh := float64(n + h)
		point := a + b*xh + pattern[(n+h)%period]
		se := sigma * math.Sqrt(1+1/float64(n)+(xh-xBar)*(xh-xBar)/sxx)

		res.Point[h] = point
		res.Lower[h] = point - z*se
		res.Upper[h] = point + z*se
	}
	if !allFinite(res.Point, res.Lower, res.Upper) {
		return nil, fmt.Errorf("%w: trend_seasonal produced non-finite forecasts", timeseries.ErrModelFit)
	}

	comp := &Components{
		Times:     append(s.Times(), res.Times...),
		Trend:     make([]float64, n+horizon),
		Seasonal:  make([]float64, n+horizon),
		Pattern:   pattern,
		Intercept: a,
		Slope:     b,
		Sigma:     sigma,
	}
	for i := range comp.Trend {
		comp.Trend[i] = a + b*float64(i)
		comp.Seasonal[i] = pattern[i%period]
	}
	res.Components = comp
	return res, nil
}

func allFinite(slices ...[]float64) bool {
	for _, values := range slices {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
