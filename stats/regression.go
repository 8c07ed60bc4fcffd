package stats

import (
	"errors"
	"math"
)

// errSingular is returned when the normal equations cannot be solved.
var errSingular = errors.New("singular design matrix")

// singularTol is the pivot threshold relative to the largest X'X entry.
const singularTol = 1e-12

// Regression holds an ordinary least squares fit.
type Regression struct {
	Coeffs    []float64
	StdErrors []float64 // nil when there are no residual degrees of freedom
	SSE       float64
	NObs      int
}

// OLS fits y = X*beta by ordinary least squares. Each row of x is one
// observation; callers add a column of ones for an intercept.
func OLS(x [][]float64, y []float64) (*Regression, error) {
	n := len(y)
	if n == 0 || len(x) != n || len(x[0]) == 0 {
		return nil, errors.New("ols: empty or mismatched input")
	}
	k := len(x[0])

	xtx := make([][]float64, k)
	for i := range xtx {
		xtx[i] = make([]float64, k)
	}
	xty := make([]float64, k)

	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			xty[j] += x[i][j] * y[i]
			for l := 0; l < k; l++ {
				xtx[j][l] += x[i][j] * x[i][l]
			}
		}
	}

	xtxInv, err := invertMatrix(xtx)
	if err != nil {
		return nil, err
	}

	coeffs := make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coeffs[i] += xtxInv[i][j] * xty[j]
		}
	}

	sse := 0.0
	for i := 0; i < n; i++ {
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += coeffs[j] * x[i][j]
		}
		r := y[i] - pred
		sse += r * r
	}

	reg := &Regression{Coeffs: coeffs, SSE: sse, NObs: n}
	if n <= k {
		return reg, nil
	}

	s2 := sse / float64(n-k)
	reg.StdErrors = make([]float64, k)
	for i := 0; i < k; i++ {
		reg.StdErrors[i] = math.Sqrt(math.Max(s2*xtxInv[i][i], 0))
	}
	return reg, nil
}

// invertMatrix inverts a square matrix using Gauss-Jordan elimination with
// partial pivoting. Pivots are compared against the matrix scale so that
// collinear price columns are detected regardless of price magnitude.
func invertMatrix(m [][]float64) ([][]float64, error) {
	n := len(m)
	if n == 0 {
		return nil, errSingular
	}

	scale := 0.0
	for i := range m {
		for _, v := range m[i] {
			scale = math.Max(scale, math.Abs(v))
		}
	}
	if scale == 0 {
		return nil, errSingular
	}

	aug := make([][]float64, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, 2*n)
		copy(aug[i][:n], m[i])
		aug[i][n+i] = 1
	}

	for i := 0; i < n; i++ {
		maxRow := i
		for k := i + 1; k < n; k++ {
			if math.Abs(aug[k][i]) > math.Abs(aug[maxRow][i]) {
				maxRow = k
			}
		}
		aug[i], aug[maxRow] = aug[maxRow], aug[i]

		if math.Abs(aug[i][i]) < singularTol*scale {
			return nil, errSingular
		}

		pivot := aug[i][i]
		for j := 0; j < 2*n; j++ {
			aug[i][j] /= pivot
		}

		for k := 0; k < n; k++ {
			if k != i {
				factor := aug[k][i]
				for j := 0; j < 2*n; j++ {
					aug[k][j] -= factor * aug[i][j]
				}
			}
		}
	}

	result := make([][]float64, n)
	for i := 0; i < n; i++ {
		result[i] = make([]float64, n)
		copy(result[i], aug[i][n:])
	}
	return result, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance uses n-1 in the denominator.
func sampleVariance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return sumSq / float64(n-1)
}

// isConstant reports whether values carry no variation beyond rounding noise.
func isConstant(values []float64) bool {
	return isFlat(values, 0)
}

// isFlat is isConstant with the rounding tolerance taken relative to at
// least scale, for values derived from a series of that magnitude.
func isFlat(values []float64, scale float64) bool {
	if len(values) == 0 {
		return true
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi-lo <= 1e-9*math.Max(scale, math.Max(math.Abs(lo), math.Abs(hi)))
}

// normalCDF is the standard normal distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormalQuantile returns z such that P(Z <= z) = p for a standard normal Z.
func NormalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// CriticalZ returns the two-sided critical value z_{1-alpha/2}.
func CriticalZ(alpha float64) float64 {
	return NormalQuantile(1 - alpha/2)
}
