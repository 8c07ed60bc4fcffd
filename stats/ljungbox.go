package stats

import (
	"math"
)

// LjungBoxResult is a portmanteau test for residual autocorrelation.
type LjungBoxResult struct {
	Statistic float64 `json:"statistic" yaml:"statistic"`
	PValue    float64 `json:"p_value" yaml:"p_value"`
	Lags      int     `json:"lags" yaml:"lags"`
	DOF       int     `json:"dof" yaml:"dof"`
}

// LjungBox tests the null hypothesis of no autocorrelation up to lag h in
// residuals. fitdf is the number of estimated ARMA coefficients. It returns
// nil for fewer than 10 residuals or a constant input.
func LjungBox(residuals []float64, lags, fitdf int) *LjungBoxResult {
	n := len(residuals)
	if n < 10 || lags < 1 {
		return nil
	}
	if lags >= n {
		lags = n - 1
	}

	m := mean(residuals)
	denom := 0.0
	for _, r := range residuals {
		denom += (r - m) * (r - m)
	}
	if denom == 0 {
		return nil
	}

	q := 0.0
	for k := 1; k <= lags; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (residuals[i] - m) * (residuals[i-k] - m)
		}
		rk := sum / denom
		q += rk * rk / float64(n-k)
	}
	q *= float64(n * (n + 2))

	dof := lags - fitdf
	if dof < 1 {
		dof = 1
	}

	return &LjungBoxResult{
		Statistic: q,
		PValue:    1 - chiSquaredCDF(q, dof),
		Lags:      lags,
		DOF:       dof,
	}
}

// DurbinWatson returns the first-order autocorrelation statistic. Values
// near 2 indicate none; NaN is returned when it is undefined.
func DurbinWatson(residuals []float64) float64 {
	if len(residuals) < 2 {
		return math.NaN()
	}

	num, den := 0.0, residuals[0]*residuals[0]
	for i := 1; i < len(residuals); i++ {
		d := residuals[i] - residuals[i-1]
		num += d * d
		den += residuals[i] * residuals[i]
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// chiSquaredCDF is the regularized lower incomplete gamma P(k/2, x/2).
func chiSquaredCDF(x float64, k int) float64 {
	if x <= 0 {
		return 0
	}
	a := float64(k) / 2
	x /= 2
	if x < a+1 {
		return gammaIncSeries(a, x)
	}
	return 1 - gammaIncCF(a, x)
}

// gammaIncSeries evaluates P(a, x) by its power series.
func gammaIncSeries(a, x float64) float64 {
	const (
		maxIter = 200
		eps     = 1e-12
	)
	lg, _ := math.Lgamma(a)

	ap := a
	sum := 1.0 / a
	del := sum
	for i := 1; i < maxIter; i++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*eps {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lg)
}

// gammaIncCF evaluates Q(a, x) = 1 - P(a, x) by Lentz's continued fraction.
func gammaIncCF(a, x float64) float64 {
	const (
		maxIter = 200
		eps     = 1e-12
		fpmin   = 1e-300
	)
	lg, _ := math.Lgamma(a)

	b := x + 1 - a
	c := 1.0 / fpmin
	d := 1.0 / b
	h := d
	for i := 1; i < maxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = b + an/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1.0 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lg) * h
}
