package stats

import (
	"fmt"
	"math"

	"github.com/sartorproj/coincast/timeseries"
)

// CorrelationKind distinguishes ACF from PACF results.
type CorrelationKind string

const (
	ACFKind  CorrelationKind = "acf"
	PACFKind CorrelationKind = "pacf"
)

// ACFResult holds correlation values for lags 0..maxLag and a single
// confidence bound applied to every lag.
type ACFResult struct {
	Kind            CorrelationKind `json:"kind" yaml:"kind"`
	Lags            []int           `json:"lags" yaml:"lags"`
	Values          []float64       `json:"values" yaml:"values"`
	ConfidenceBound float64         `json:"confidence_bound" yaml:"confidence_bound"`
	Alpha           float64         `json:"alpha" yaml:"alpha"`
	NObs            int             `json:"n_obs" yaml:"n_obs"`
}

// Significant returns the lags (excluding 0) whose value exceeds the bound.
func (r *ACFResult) Significant() []int {
	var lags []int
	for i := 1; i < len(r.Values); i++ {
		if math.Abs(r.Values[i]) > r.ConfidenceBound {
			lags = append(lags, r.Lags[i])
		}
	}
	return lags
}

// At returns the value at lag k, or NaN when k is out of range.
func (r *ACFResult) At(k int) float64 {
	if k < 0 || k >= len(r.Values) {
		return math.NaN()
	}
	return r.Values[k]
}

// ACF calculates the autocorrelation function for lags 0 to maxLag.
// maxLag must be positive and below half the number of values.
func ACF(values []float64, maxLag int, alpha float64) (*ACFResult, error) {
	acf, err := autocorrelations(values, maxLag, alpha)
	if err != nil {
		return nil, err
	}
	return newACFResult(ACFKind, acf, alpha, len(values)), nil
}

// PACF calculates the partial autocorrelation function using the
// Durbin-Levinson recursion. Lag 0 is reported as 1.
func PACF(values []float64, maxLag int, alpha float64) (*ACFResult, error) {
	acf, err := autocorrelations(values, maxLag, alpha)
	if err != nil {
		return nil, err
	}

	pacf := make([]float64, maxLag+1)
	pacf[0] = 1.0

	phi := make([][]float64, maxLag+1)
	for i := range phi {
		phi[i] = make([]float64, maxLag+1)
	}

	phi[1][1] = acf[1]
	pacf[1] = acf[1]

	for k := 2; k <= maxLag; k++ {
		num := acf[k]
		den := 1.0
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
			den -= phi[k-1][j] * acf[j]
		}

		if den == 0 {
			pacf[k] = 0
			continue
		}

		phi[k][k] = num / den
		pacf[k] = phi[k][k]

		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}
	}

	return newACFResult(PACFKind, pacf, alpha, len(values)), nil
}

func autocorrelations(values []float64, maxLag int, alpha float64) ([]float64, error) {
	n := len(values)
	if maxLag < 1 {
		return nil, fmt.Errorf("%w: max lag must be positive, got %d", timeseries.ErrInvalidParameter, maxLag)
	}
	if float64(maxLag) >= float64(n)/2 {
		return nil, fmt.Errorf("%w: max lag %d must be below half the series length %d",
			timeseries.ErrInvalidParameter, maxLag, n)
	}
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("%w: alpha must be in (0, 1), got %g", timeseries.ErrInvalidParameter, alpha)
	}

	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	if variance == 0 || math.IsNaN(variance) || math.IsInf(variance, 0) {
		return nil, fmt.Errorf("%w: autocorrelation of a constant or non-finite series is undefined", timeseries.ErrInvalidDomain)
	}

	acf := make([]float64, maxLag+1)
	acf[0] = 1.0
	for k := 1; k <= maxLag; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (values[i] - m) * (values[i-k] - m)
		}
		acf[k] = sum / variance
	}
	return acf, nil
}

func newACFResult(kind CorrelationKind, values []float64, alpha float64, n int) *ACFResult {
	lags := make([]int, len(values))
	for i := range lags {
		lags[i] = i
	}
	return &ACFResult{
		Kind:            kind,
		Lags:            lags,
		Values:          values,
		ConfidenceBound: CriticalZ(alpha) / math.Sqrt(float64(n)),
		Alpha:           alpha,
		NObs:            n,
	}
}

// Target selects which transform of the series is correlated.
type Target string

const (
	PriceTarget   Target = "price"
	ReturnsTarget Target = "returns"
)

// Validate rejects unknown targets, including the empty one.
func (t Target) Validate() error {
	switch t {
	case PriceTarget, ReturnsTarget:
		return nil
	}
	return fmt.Errorf("%w: autocorrelation target must be %q or %q, got %q",
		timeseries.ErrInvalidParameter, PriceTarget, ReturnsTarget, t)
}

// Correlogram bundles ACF and PACF computed over the same transform.
type Correlogram struct {
	Target Target `json:"target" yaml:"target"`
	// Stationarity is set for the price target only.
	Stationarity *StationarityDecision `json:"stationarity,omitempty" yaml:"stationarity,omitempty"`
	ACF          *ACFResult            `json:"acf" yaml:"acf"`
	PACF         *ACFResult            `json:"pacf" yaml:"pacf"`
}

// Autocorrelation computes ACF and PACF for a series. The price target is
// differenced once when the unit-root test calls for it; the returns target
// uses log returns as they are.
func Autocorrelation(s *timeseries.Series, target Target, maxLag int, alpha float64) (*Correlogram, error) {
	return AutocorrelationWith(s, target, maxLag, alpha, nil)
}

// AutocorrelationWith is Autocorrelation with the stationarity decision for
// the prices of s already made. A nil decision, or one made over a different
// number of prices, is recomputed.
func AutocorrelationWith(s *timeseries.Series, target Target, maxLag int, alpha float64, decision *StationarityDecision) (*Correlogram, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	c := &Correlogram{Target: target}
	var values []float64
	switch target {
	case PriceTarget:
		if !decision.Covers(s.Len()) {
			var err error
			if decision, err = Stationarize(s.Prices()); err != nil {
				return nil, err
			}
		}
		c.Stationarity = decision
		values = decision.Values
	case ReturnsTarget:
		values = Returns(s).Values(LogReturn)
	}

	acf, err := ACF(values, maxLag, alpha)
	if err != nil {
		return nil, err
	}
	pacf, err := PACF(values, maxLag, alpha)
	if err != nil {
		return nil, err
	}
	c.ACF = acf
	c.PACF = pacf
	return c, nil
}
