package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/sartorproj/coincast/timeseries"
)

// Significance is the p-value above which a series is treated as non-stationary.
const Significance = 0.05

const minStationarityObs = 10

// exactFitTol flags a unit-root regression whose residuals vanish.
const exactFitTol = 1e-12

// StationarityResult is the outcome of an augmented Dickey-Fuller test.
// The null hypothesis is a unit root; IsStationary is true when PValue <= 0.05.
type StationarityResult struct {
	Statistic      float64            `json:"statistic" yaml:"statistic"`
	PValue         float64            `json:"p_value" yaml:"p_value"`
	Lags           int                `json:"lags" yaml:"lags"`
	NObs           int                `json:"n_obs" yaml:"n_obs"`
	CriticalValues map[string]float64 `json:"critical_values" yaml:"critical_values"`
	IsStationary   bool               `json:"is_stationary" yaml:"is_stationary"`
	// Degenerate is set for constant inputs and regressions with zero residuals,
	// where the statistic is derived from the sign of the level coefficient.
	Degenerate bool        `json:"degenerate" yaml:"degenerate"`
	KPSS       *KPSSResult `json:"kpss,omitempty" yaml:"kpss,omitempty"`
}

// MarshalJSON writes a non-finite statistic as null, which JSON can carry.
func (r StationarityResult) MarshalJSON() ([]byte, error) {
	type plain StationarityResult
	var stat *float64
	if !math.IsInf(r.Statistic, 0) && !math.IsNaN(r.Statistic) {
		stat = &r.Statistic
	}
	return json.Marshal(struct {
		plain
		Statistic *float64 `json:"statistic"`
	}{plain(r), stat})
}

// ADF performs the augmented Dickey-Fuller test with a constant term.
// The lag order starts at floor((n-1)^(1/3)) and is reduced until the
// regression can be solved.
func ADF(values []float64) (*StationarityResult, error) {
	return adf(values, 0)
}

// adf treats values whose spread is rounding noise relative to scale as
// constant.
func adf(values []float64, scale float64) (*StationarityResult, error) {
	n := len(values)
	if n < minStationarityObs {
		return nil, fmt.Errorf("%w: unit-root test needs %d values, got %d", timeseries.ErrInsufficientData, minStationarityObs, n)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value at index %d is not finite", timeseries.ErrInvalidDomain, i)
		}
	}

	kpss := KPSS(values, 0)

	// A constant series is trivially stationary.
	if isFlat(values, scale) {
		return &StationarityResult{
			Statistic:      math.Inf(-1),
			PValue:         0,
			NObs:           n - 1,
			CriticalValues: adfCriticalValues(n - 1),
			IsStationary:   true,
			Degenerate:     true,
			KPSS:           kpss,
		}, nil
	}

	diff := timeseries.Diff(values)
	maxLag := int(math.Floor(math.Pow(float64(n-1), 1.0/3.0)))

	for lag := maxLag; lag >= 0; lag-- {
		nObs := n - lag - 1
		k := lag + 2
		if nObs <= k {
			continue
		}

		// delta_y_t = alpha + beta*y_{t-1} + sum(gamma_j * delta_y_{t-j})
		y := make([]float64, nObs)
		x := make([][]float64, nObs)
		for i := 0; i < nObs; i++ {
			t := i + lag
			y[i] = diff[t]
			x[i] = make([]float64, k)
			x[i][0] = 1
			x[i][1] = values[t]
			for j := 1; j <= lag; j++ {
				x[i][1+j] = diff[t-j]
			}
		}

		reg, err := OLS(x, y)
		if errors.Is(err, errSingular) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", timeseries.ErrInvalidDomain, err)
		}

		stat, degenerate := adfStatistic(reg, y)
		pValue := mackinnonPValue(stat)
		return &StationarityResult{
			Statistic:      stat,
			PValue:         pValue,
			Lags:           lag,
			NObs:           nObs,
			CriticalValues: adfCriticalValues(nObs),
			IsStationary:   pValue <= Significance,
			Degenerate:     degenerate,
			KPSS:           kpss,
		}, nil
	}

	return nil, fmt.Errorf("%w: unit-root regression is singular at every lag order", timeseries.ErrInvalidDomain)
}

// adfStatistic returns the t-statistic of the lagged level coefficient.
// When the regression fits exactly the t-statistic is undefined and the
// sign of the coefficient decides: negative means mean reversion.
func adfStatistic(reg *Regression, y []float64) (float64, bool) {
	beta := reg.Coeffs[1]

	tss := 0.0
	for _, v := range y {
		tss += v * v
	}
	if reg.SSE <= exactFitTol*tss || reg.StdErrors == nil || reg.StdErrors[1] == 0 {
		switch {
		case beta < -1e-8:
			return math.Inf(-1), true
		case beta > 1e-8:
			return math.Inf(1), true
		default:
			return 0, true
		}
	}
	return beta / reg.StdErrors[1], false
}

// mackinnonPValue approximates the ADF p-value for the constant-only case
// using MacKinnon's (1994) response surface.
func mackinnonPValue(stat float64) float64 {
	const (
		tauMax  = 2.74
		tauMin  = -18.83
		tauStar = -1.61
	)
	switch {
	case math.IsNaN(stat):
		return 1
	case stat > tauMax:
		return 1
	case stat < tauMin:
		return 0
	}

	var z float64
	if stat <= tauStar {
		z = 2.1659 + 1.4412*stat + 0.038269*stat*stat
	} else {
		z = 1.7339 + 0.93202*stat - 0.12745*stat*stat - 0.010368*stat*stat*stat
	}
	return normalCDF(z)
}

// adfCriticalValues returns MacKinnon (2010) finite-sample critical values
// for the constant-only regression.
func adfCriticalValues(nObs int) map[string]float64 {
	coeffs := map[string][4]float64{
		"1%":  {-3.43035, -6.5393, -16.786, -79.433},
		"5%":  {-2.86154, -2.8903, -4.234, -40.040},
		"10%": {-2.56677, -1.5384, -2.809, 0},
	}
	inv := 1 / float64(nObs)

	out := make(map[string]float64, len(coeffs))
	for level, b := range coeffs {
		out[level] = b[0] + b[1]*inv + b[2]*inv*inv + b[3]*inv*inv*inv
	}
	return out
}

// KPSSResult represents a KPSS level-stationarity test. Its null hypothesis
// is stationarity, the reverse of ADF, so it serves as a cross-check.
type KPSSResult struct {
	Statistic    float64 `json:"statistic" yaml:"statistic"`
	PValue       float64 `json:"p_value" yaml:"p_value"`
	Lags         int     `json:"lags" yaml:"lags"`
	IsStationary bool    `json:"is_stationary" yaml:"is_stationary"`
}

// KPSS performs the Kwiatkowski-Phillips-Schmidt-Shin test around a constant.
// It returns nil for fewer than 10 values.
func KPSS(values []float64, nlags int) *KPSSResult {
	n := len(values)
	if n < minStationarityObs {
		return nil
	}

	if nlags <= 0 {
		nlags = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	if nlags >= n {
		nlags = n - 1
	}

	m := mean(values)
	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - m
	}

	// Newey-West long-run variance with Bartlett weights.
	s2 := 0.0
	for _, r := range residuals {
		s2 += r * r
	}
	s2 /= float64(n)
	for l := 1; l <= nlags; l++ {
		cov := 0.0
		for i := l; i < n; i++ {
			cov += residuals[i] * residuals[i-l]
		}
		cov /= float64(n)
		s2 += 2 * (1 - float64(l)/float64(nlags+1)) * cov
	}
	if s2 <= 0 {
		s2 = 1e-10
	}

	eta := 0.0
	cum := 0.0
	for _, r := range residuals {
		cum += r
		eta += cum * cum
	}
	stat := eta / (float64(n) * float64(n) * s2)
	pValue := kpssPValue(stat)

	return &KPSSResult{
		Statistic:    stat,
		PValue:       pValue,
		Lags:         nlags,
		IsStationary: pValue >= Significance,
	}
}

// kpssPValue interpolates the level-stationarity table
// (10%: 0.347, 5%: 0.463, 1%: 0.739).
func kpssPValue(stat float64) float64 {
	switch {
	case stat > 0.739:
		return 0.01
	case stat > 0.463:
		return 0.05 - (stat-0.463)/(0.739-0.463)*0.04
	case stat > 0.347:
		return 0.10 - (stat-0.347)/(0.463-0.347)*0.05
	default:
		return math.Min(0.10+(0.347-stat)*0.5, 1)
	}
}

// StationarityDecision records the once-per-request differencing policy.
type StationarityDecision struct {
	Initial     *StationarityResult `json:"initial" yaml:"initial"`
	Differenced bool                `json:"differenced" yaml:"differenced"`
	AfterDiff   *StationarityResult `json:"after_diff,omitempty" yaml:"after_diff,omitempty"`
	// Values is the input, or its first difference when Differenced is set.
	Values  []float64 `json:"-" yaml:"-"`
	Warning string    `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Covers reports whether d was made over n values.
func (d *StationarityDecision) Covers(n int) bool {
	return d != nil && len(d.Values)+d.Order() == n
}

// Order returns the integration order implied by the decision.
func (d *StationarityDecision) Order() int {
	if d.Differenced {
		return 1
	}
	return 0
}

// Stationarize tests values and differences them once when the unit-root
// null cannot be rejected (p > 0.05). The differenced values are re-tested
// once; if they still look non-stationary the decision carries a warning and
// the caller proceeds with them anyway.
func Stationarize(values []float64) (*StationarityDecision, error) {
	initial, err := ADF(values)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	copy(out, values)
	d := &StationarityDecision{Initial: initial, Values: out}
	if initial.IsStationary {
		return d, nil
	}

	d.Differenced = true
	d.Values = timeseries.Diff(values)

	// Differences of a near-linear series keep the rounding noise of the
	// original level.
	after, err := adf(d.Values, maxAbs(values))
	if err != nil {
		d.Warning = fmt.Sprintf("could not re-test after differencing: %v", err)
		return d, nil
	}
	d.AfterDiff = after
	if !after.IsStationary {
		d.Warning = fmt.Sprintf("series is still non-stationary after one difference (p=%.4f); proceeding", after.PValue)
	}
	return d, nil
}

func maxAbs(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
