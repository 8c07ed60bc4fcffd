// Package arima implements ARIMA (AutoRegressive Integrated Moving Average) models.
package arima

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

const (
	maxIter      = 100
	relTolerance = 1e-10
	maxHalvings  = 40
	maBound      = 0.99
)

// Order represents ARIMA model order (p, d, q).
type Order struct {
	P int `json:"p" yaml:"p"` // AR order
	D int `json:"d" yaml:"d"` // differencing order
	Q int `json:"q" yaml:"q"` // MA order
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// Model represents an ARIMA model estimated by conditional least squares.
type Model struct {
	Order    Order
	ARCoeffs []float64 // phi
	MACoeffs []float64 // theta
	// Const is the intercept of the differenced equation. It is only
	// estimated when IncludeConstant is set.
	Const           float64
	IncludeConstant bool
	Variance        float64 // innovation variance sigma^2
	IC              *stats.InformationCriteria
	Iterations      int // refinement steps taken for MA terms

	fitted     bool
	levels     [][]float64 // levels[k] is the k-times differenced input
	residuals  []float64
	fittedVals []float64
}

// New creates an ARIMA model. Following the usual convention a constant is
// included only when the model is not differenced.
func New(p, d, q int) *Model {
	return &Model{
		Order:           Order{P: p, D: d, Q: q},
		ARCoeffs:        make([]float64, max(p, 0)),
		MACoeffs:        make([]float64, max(q, 0)),
		IncludeConstant: d == 0,
	}
}

// Fit estimates the model on values. It returns ErrModelFit for degenerate
// inputs or estimates, and ErrTimeout when ctx ends before the fit does.
func (m *Model) Fit(ctx context.Context, values []float64) error {
	o := m.Order
	if o.P < 0 || o.D < 0 || o.Q < 0 || o.D > 2 {
		return fmt.Errorf("%w: invalid order %s", timeseries.ErrInvalidParameter, o)
	}
	if len(values) < o.P+o.Q+o.D+10 {
		return fmt.Errorf("%w: %s needs at least %d values, got %d",
			timeseries.ErrInsufficientData, o, o.P+o.Q+o.D+10, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value at index %d is not finite", timeseries.ErrInvalidDomain, i)
		}
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	m.fitted = false
	m.levels = make([][]float64, o.D+1)
	m.levels[0] = append([]float64(nil), values...)
	for k := 1; k <= o.D; k++ {
		m.levels[k] = timeseries.Diff(m.levels[k-1])
	}
	w := m.levels[o.D]

	if spread(w) == 0 {
		return fmt.Errorf("%w: %s on a constant series is degenerate", timeseries.ErrModelFit, o)
	}

	var err error
	switch {
	case o.P == 0 && o.Q == 0:
		err = m.fitMean(w)
	case o.Q == 0:
		err = m.fitAR(w)
	default:
		err = m.fitCSS(ctx, w)
	}
	if err != nil {
		return err
	}

	if !m.finite() {
		return fmt.Errorf("%w: %s produced non-finite estimates", timeseries.ErrModelFit, o)
	}
	if m.Variance <= 0 {
		return fmt.Errorf("%w: %s fits exactly, innovation variance is zero", timeseries.ErrModelFit, o)
	}

	m.IC = stats.CalculateIC(stats.GaussianLogLik(m.residuals, m.Variance), len(m.residuals), m.nParams()+1)
	m.fitted = true
	return checkContext(ctx)
}

// fitMean handles the white noise case.
func (m *Model) fitMean(w []float64) error {
	n := len(w)
	if m.IncludeConstant {
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		m.Const = sum / float64(n)
	}

	m.residuals = make([]float64, n)
	m.fittedVals = make([]float64, n)
	sse := 0.0
	for i, v := range w {
		m.fittedVals[i] = m.Const
		m.residuals[i] = v - m.Const
		sse += m.residuals[i] * m.residuals[i]
	}
	m.Variance = sse / float64(n-m.nParams())
	return nil
}

// fitAR regresses w_t on its p lags; conditional least squares for a pure
// AR model is exactly ordinary least squares.
func (m *Model) fitAR(w []float64) error {
	p := m.Order.P
	n := len(w)

	x := make([][]float64, 0, n-p)
	y := make([]float64, 0, n-p)
	for t := p; t < n; t++ {
		row := make([]float64, 0, p+1)
		if m.IncludeConstant {
			row = append(row, 1)
		}
		for i := 1; i <= p; i++ {
			row = append(row, w[t-i])
		}
		x = append(x, row)
		y = append(y, w[t])
	}

	reg, err := stats.OLS(x, y)
	if err != nil {
		return fmt.Errorf("%w: %s regression: %v", timeseries.ErrModelFit, m.Order, err)
	}

	coeffs := reg.Coeffs
	if m.IncludeConstant {
		m.Const, coeffs = coeffs[0], coeffs[1:]
	}
	copy(m.ARCoeffs, coeffs)

	m.storeResiduals(w)
	return nil
}

// fitCSS estimates models with MA terms. Starting values come from the
// Hannan-Rissanen two-stage regression; they are then refined by Gauss-Newton
// steps on the conditional sum of squares.
func (m *Model) fitCSS(ctx context.Context, w []float64) error {
	if err := m.hannanRissanen(w); err != nil {
		return err
	}

	params := m.pack()
	sse := m.sse(w, params)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return fmt.Errorf("%w: %s starting values are unstable", timeseries.ErrModelFit, m.Order)
	}

	converged := false
	for iter := 0; iter < maxIter; iter++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		m.Iterations = iter + 1

		// Linearize e(params + delta) ~ e + J*delta and solve for delta.
		e, jac := m.jacobian(w, params)
		reg, err := stats.OLS(jac, e)
		if err != nil {
			return fmt.Errorf("%w: %s Gauss-Newton step: %v", timeseries.ErrModelFit, m.Order, err)
		}

		improved := false
		scale := 1.0
		for h := 0; h < maxHalvings; h++ {
			candidate := make([]float64, len(params))
			for i := range params {
				candidate[i] = params[i] - scale*reg.Coeffs[i]
			}
			m.clampMA(candidate)

			newSSE := m.sse(w, candidate)
			if newSSE < sse {
				if (sse-newSSE)/sse < relTolerance {
					converged = true
				}
				params, sse = candidate, newSSE
				improved = true
				break
			}
			scale /= 2
		}
		if !improved || converged {
			converged = true
			break
		}
	}
	if !converged {
		return fmt.Errorf("%w: %s optimizer did not converge in %d iterations", timeseries.ErrModelFit, m.Order, maxIter)
	}

	m.unpack(params)
	m.storeResiduals(w)
	return nil
}

// hannanRissanen fits a long autoregression to estimate innovations, then
// regresses w_t on lagged values and lagged innovation estimates.
func (m *Model) hannanRissanen(w []float64) error {
	p, q := m.Order.P, m.Order.Q
	n := len(w)

	long := max(p+q+2, int(10*math.Log10(float64(n))))
	if limit := (n - 1) / 4; long > limit {
		long = limit
	}
	if long < 1 {
		long = 1
	}

	mu := 0.0
	if m.IncludeConstant {
		for _, v := range w {
			mu += v
		}
		mu /= float64(n)
	}

	acf, err := stats.ACF(w, long, 0.05)
	if err != nil {
		return fmt.Errorf("%w: %s long autoregression: %v", timeseries.ErrModelFit, m.Order, err)
	}
	phiLong := yuleWalker(acf.Values, long)

	innov := make([]float64, n)
	for t := long; t < n; t++ {
		pred := mu
		for i := 0; i < long; i++ {
			pred += phiLong[i] * (w[t-i-1] - mu)
		}
		innov[t] = w[t] - pred
	}

	start := long + max(p, q)
	var x [][]float64
	var y []float64
	for t := start; t < n; t++ {
		row := make([]float64, 0, p+q+1)
		if m.IncludeConstant {
			row = append(row, 1)
		}
		for i := 1; i <= p; i++ {
			row = append(row, w[t-i])
		}
		for j := 1; j <= q; j++ {
			row = append(row, innov[t-j])
		}
		x = append(x, row)
		y = append(y, w[t])
	}
	if len(y) <= p+q+1 {
		return fmt.Errorf("%w: %s has too few observations after the long autoregression",
			timeseries.ErrInsufficientData, m.Order)
	}

	reg, err := stats.OLS(x, y)
	if err != nil {
		return fmt.Errorf("%w: %s two-stage regression: %v", timeseries.ErrModelFit, m.Order, err)
	}
	m.unpack(reg.Coeffs)
	m.clampMACoeffs()
	return nil
}

// residualsFor runs the CSS recursion for a parameter vector. Innovations
// before the first usable observation are zero.
func (m *Model) residualsFor(w, params []float64) []float64 {
	c, ar, ma := m.split(params)
	p, q := len(ar), len(ma)
	n := len(w)

	e := make([]float64, n)
	for t := p; t < n; t++ {
		pred := c
		for i := 0; i < p; i++ {
			pred += ar[i] * w[t-i-1]
		}
		for j := 0; j < q && t-j-1 >= p; j++ {
			pred += ma[j] * e[t-j-1]
		}
		e[t] = w[t] - pred
	}
	return e
}

func (m *Model) sse(w, params []float64) float64 {
	e := m.residualsFor(w, params)
	sum := 0.0
	for _, r := range e[m.Order.P:] {
		sum += r * r
	}
	return sum
}

// jacobian returns the conditional residuals and their forward-difference
// derivatives with respect to each parameter.
func (m *Model) jacobian(w, params []float64) ([]float64, [][]float64) {
	p := m.Order.P
	base := m.residualsFor(w, params)[p:]

	jac := make([][]float64, len(base))
	for t := range jac {
		jac[t] = make([]float64, len(params))
	}
	shifted := make([]float64, len(params))
	for i := range params {
		copy(shifted, params)
		h := 1e-6 * math.Max(1, math.Abs(params[i]))
		shifted[i] += h
		e := m.residualsFor(w, shifted)[p:]
		for t := range base {
			jac[t][i] = (e[t] - base[t]) / h
		}
	}
	return base, jac
}

// storeResiduals records residuals and fitted values from the current
// coefficients, and the innovation variance with a degrees of freedom
// correction.
func (m *Model) storeResiduals(w []float64) {
	p := m.Order.P
	e := m.residualsFor(w, m.pack())

	m.residuals = append([]float64(nil), e[p:]...)
	m.fittedVals = make([]float64, len(w)-p)
	sse := 0.0
	for i, r := range m.residuals {
		m.fittedVals[i] = w[p+i] - r
		sse += r * r
	}

	dof := len(m.residuals) - m.nParams()
	if dof < 1 {
		dof = len(m.residuals)
	}
	m.Variance = sse / float64(dof)
}

func (m *Model) nParams() int {
	k := m.Order.P + m.Order.Q
	if m.IncludeConstant {
		k++
	}
	return k
}

func (m *Model) pack() []float64 {
	params := make([]float64, 0, m.nParams())
	if m.IncludeConstant {
		params = append(params, m.Const)
	}
	params = append(params, m.ARCoeffs...)
	return append(params, m.MACoeffs...)
}

func (m *Model) split(params []float64) (float64, []float64, []float64) {
	c := 0.0
	if m.IncludeConstant {
		c, params = params[0], params[1:]
	}
	return c, params[:m.Order.P], params[m.Order.P : m.Order.P+m.Order.Q]
}

func (m *Model) unpack(params []float64) {
	c, ar, ma := m.split(params)
	m.Const = c
	m.ARCoeffs = append(m.ARCoeffs[:0], ar...)
	m.MACoeffs = append(m.MACoeffs[:0], ma...)
}

// clampMA keeps MA coefficients inside a simple invertibility box.
func (m *Model) clampMA(params []float64) {
	off := m.Order.P
	if m.IncludeConstant {
		off++
	}
	for i := off; i < len(params); i++ {
		params[i] = math.Max(-maBound, math.Min(maBound, params[i]))
	}
}

func (m *Model) clampMACoeffs() {
	for i, v := range m.MACoeffs {
		m.MACoeffs[i] = math.Max(-maBound, math.Min(maBound, v))
	}
}

func (m *Model) finite() bool {
	for _, v := range append(m.pack(), m.Variance) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Prediction holds point forecasts and their standard errors on the scale of
// the fitted input.
type Prediction struct {
	Mean   []float64 `json:"mean" yaml:"mean"`
	StdErr []float64 `json:"std_err" yaml:"std_err"`
}

// Interval returns mean -/+ z*StdErr for confidence level 1-alpha.
func (p *Prediction) Interval(alpha float64) (lower, upper []float64) {
	z := stats.CriticalZ(alpha)
	lower = make([]float64, len(p.Mean))
	upper = make([]float64, len(p.Mean))
	for i, mu := range p.Mean {
		lower[i] = mu - z*p.StdErr[i]
		upper[i] = mu + z*p.StdErr[i]
	}
	return lower, upper
}

// Forecast predicts steps values ahead. Standard errors come from the psi
// weights of the integrated model, so they never shrink with the horizon.
func (m *Model) Forecast(steps int) (*Prediction, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted before forecasting")
	}
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", timeseries.ErrInvalidParameter, steps)
	}

	p, q, d := m.Order.P, m.Order.Q, m.Order.D
	w := m.levels[d]
	n := len(w)

	extW := make([]float64, n+steps)
	copy(extW, w)
	extE := make([]float64, n+steps)
	copy(extE[n-len(m.residuals):], m.residuals)

	for h := 0; h < steps; h++ {
		t := n + h
		pred := m.Const
		for i := 0; i < p; i++ {
			pred += m.ARCoeffs[i] * extW[t-i-1]
		}
		// Future innovations have zero expectation.
		for j := 0; j < q; j++ {
			if t-j-1 < n {
				pred += m.MACoeffs[j] * extE[t-j-1]
			}
		}
		extW[t] = pred
	}

	mean := m.integrate(extW[n:])

	psi := m.psiWeights(steps)
	stdErr := make([]float64, steps)
	cum := 0.0
	for h := 0; h < steps; h++ {
		cum += psi[h] * psi[h]
		stdErr[h] = math.Sqrt(m.Variance * cum)
	}

	for h := range mean {
		if math.IsNaN(mean[h]) || math.IsInf(mean[h], 0) || math.IsNaN(stdErr[h]) || math.IsInf(stdErr[h], 0) {
			return nil, fmt.Errorf("%w: %s forecast diverged at step %d", timeseries.ErrModelFit, m.Order, h+1)
		}
	}
	return &Prediction{Mean: mean, StdErr: stdErr}, nil
}

// integrate undoes differencing level by level, anchoring each cumulative
// sum on the last observed value of the level below.
func (m *Model) integrate(forecasts []float64) []float64 {
	result := append([]float64(nil), forecasts...)
	for k := m.Order.D - 1; k >= 0; k-- {
		level := m.levels[k]
		prev := level[len(level)-1]
		for j := range result {
			result[j] += prev
			prev = result[j]
		}
	}
	return result
}

// psiWeights expands (1-B)^d phi(B) psi(B) = theta(B) into its first n
// moving average weights.
func (m *Model) psiWeights(n int) []float64 {
	phi := m.integratedAR()
	psi := make([]float64, n)
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j <= len(m.MACoeffs) {
			v = m.MACoeffs[j-1]
		}
		for i := 1; i <= len(phi) && i <= j; i++ {
			v += phi[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

// integratedAR returns the AR coefficients of phi(B)(1-B)^d.
func (m *Model) integratedAR() []float64 {
	// poly holds 1 - sum(phi_i B^i) as coefficients of B^0..B^k.
	poly := make([]float64, len(m.ARCoeffs)+1)
	poly[0] = 1
	for i, c := range m.ARCoeffs {
		poly[i+1] = -c
	}
	for k := 0; k < m.Order.D; k++ {
		next := make([]float64, len(poly)+1)
		for i, c := range poly {
			next[i] += c
			next[i+1] -= c
		}
		poly = next
	}

	out := make([]float64, len(poly)-1)
	for i := range out {
		out[i] = -poly[i+1]
	}
	return out
}

// Residuals returns the in-sample one-step residuals of the differenced series.
func (m *Model) Residuals() []float64 {
	if !m.fitted {
		return nil
	}
	return append([]float64(nil), m.residuals...)
}

// FittedValues returns the in-sample one-step predictions of the differenced series.
func (m *Model) FittedValues() []float64 {
	if !m.fitted {
		return nil
	}
	return append([]float64(nil), m.fittedVals...)
}

// Summary reports the estimates and residual diagnostics.
type Summary struct {
	Order        Order                 `json:"order" yaml:"order"`
	ARCoeffs     []float64             `json:"ar" yaml:"ar"`
	MACoeffs     []float64             `json:"ma,omitempty" yaml:"ma,omitempty"`
	Const        float64               `json:"const" yaml:"const"`
	HasConst     bool                  `json:"has_const" yaml:"has_const"`
	Variance     float64               `json:"sigma2" yaml:"sigma2"`
	AIC          float64               `json:"aic" yaml:"aic"`
	AICc         float64               `json:"aicc" yaml:"aicc"`
	BIC          float64               `json:"bic" yaml:"bic"`
	LogLik       float64               `json:"log_lik" yaml:"log_lik"`
	NObs         int                   `json:"n_obs" yaml:"n_obs"`
	LjungBox     *stats.LjungBoxResult `json:"ljung_box,omitempty" yaml:"ljung_box,omitempty"`
	DurbinWatson float64               `json:"durbin_watson" yaml:"durbin_watson"`
}

// Summary returns nil for an unfitted model.
func (m *Model) Summary() *Summary {
	if !m.fitted {
		return nil
	}

	return &Summary{
		Order:        m.Order,
		ARCoeffs:     append([]float64(nil), m.ARCoeffs...),
		MACoeffs:     append([]float64(nil), m.MACoeffs...),
		Const:        m.Const,
		HasConst:     m.IncludeConstant,
		Variance:     m.Variance,
		AIC:          m.IC.AIC,
		AICc:         m.IC.AICc,
		BIC:          m.IC.BIC,
		LogLik:       m.IC.LogLik,
		NObs:         len(m.levels[0]),
		LjungBox:     stats.LjungBox(m.residuals, 10, m.Order.P+m.Order.Q),
		DurbinWatson: stats.DurbinWatson(m.residuals),
	}
}

// yuleWalker solves the Yule-Walker equations by Levinson-Durbin recursion.
func yuleWalker(acf []float64, order int) []float64 {
	phi := make([]float64, order)
	if order <= 0 || len(acf) <= order {
		return phi
	}

	phi[0] = acf[1]
	v := 1 - phi[0]*phi[0]

	for i := 1; i < order; i++ {
		if v <= 0 {
			break
		}
		lambda := acf[i+1]
		for j := 0; j < i; j++ {
			lambda -= phi[j] * acf[i-j]
		}
		lambda /= v

		next := make([]float64, i+1)
		for j := 0; j < i; j++ {
			next[j] = phi[j] - lambda*phi[i-1-j]
		}
		next[i] = lambda
		copy(phi, next)

		v *= 1 - lambda*lambda
	}
	return phi
}

func spread(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo <= 1e-12*math.Max(math.Abs(lo), math.Abs(hi)) {
		return 0
	}
	return hi - lo
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", timeseries.ErrTimeout, err)
	}
	return nil
}
