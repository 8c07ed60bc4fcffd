package stats

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sartorproj/coincast/timeseries"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailySeries(t *testing.T, prices []float64) *timeseries.Series {
	t.Helper()
	points := make([]timeseries.TimePoint, len(prices))
	for i, p := range prices {
		points[i] = timeseries.TimePoint{Time: epoch.AddDate(0, 0, i), Price: p}
	}
	s, err := timeseries.Build(points)
	require.NoError(t, err)
	return s
}

func linearPrices(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 2*float64(i)
	}
	return prices
}

// weeklyPrices is a trending daily series with a strong day-of-week cycle.
func weeklyPrices(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 1000 + 0.5*float64(i) + 20*math.Sin(2*math.Pi*float64(i)/7) + rng.NormFloat64()
	}
	return prices
}

// ar1 generates a mean-reverting AR(1) process around level.
func ar1(n int, phi, level float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	x := 0.0
	for i := range values {
		x = phi*x + rng.NormFloat64()
		values[i] = level + x
	}
	return values
}

func TestReturns(t *testing.T) {
	prices := []float64{100, 110, 99, 120, 118}
	s := dailySeries(t, prices)

	r := Returns(s)
	require.Equal(t, len(prices)-1, r.Len())

	assert.InDelta(t, 0.1, r.Points[0].Simple, 1e-12)
	assert.InDelta(t, math.Log(1.1), r.Points[0].Log, 1e-12)
	assert.Equal(t, epoch.AddDate(0, 0, 1), r.Points[0].Time)

	// Log returns telescope to the log of the total price ratio.
	sum := 0.0
	for _, v := range r.Values(LogReturn) {
		sum += v
	}
	assert.InDelta(t, math.Log(prices[len(prices)-1]/prices[0]), sum, 1e-12)
}

func TestRollingVolatility(t *testing.T) {
	t.Run("constant prices have zero volatility", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 42
		}
		vol, err := RollingVolatility(Returns(dailySeries(t, prices)), 5, SimpleReturn)
		require.NoError(t, err)

		require.Equal(t, 19, vol.Len())
		for i, s := range vol.Samples {
			if i < 4 {
				assert.False(t, s.Valid, "index %d", i)
				continue
			}
			assert.True(t, s.Valid, "index %d", i)
			assert.Equal(t, 0.0, s.Value)
		}
		assert.Equal(t, "volatility_simple", vol.Kind)
	})

	t.Run("matches sample standard deviation", func(t *testing.T) {
		s := dailySeries(t, []float64{100, 110, 99, 120, 118, 125})
		r := Returns(s)
		vol, err := RollingVolatility(r, 3, LogReturn)
		require.NoError(t, err)

		last, ok := vol.Latest()
		require.True(t, ok)
		logs := r.Values(LogReturn)
		assert.InDelta(t, math.Sqrt(sampleVariance(logs[2:5])), last.Value, 1e-12)
	})

	t.Run("every filled window uses n-1", func(t *testing.T) {
		r := Returns(dailySeries(t, weeklyPrices(60, 3)))
		values := r.Values(SimpleReturn)

		vol, err := RollingVolatility(r, 4, SimpleReturn)
		require.NoError(t, err)
		require.Equal(t, r.Len(), vol.Len())
		for i, s := range vol.Samples {
			assert.Equal(t, r.Points[i].Time, s.Time)
			if i < 3 {
				assert.False(t, s.Valid, "index %d", i)
				continue
			}
			require.True(t, s.Valid, "index %d", i)
			assert.InDelta(t, math.Sqrt(sampleVariance(values[i-3:i+1])), s.Value, 1e-12, "index %d", i)
		}
	})

	tests := []struct {
		name   string
		window int
		kind   ReturnKind
		want   error
	}{
		{"window too small", 1, SimpleReturn, timeseries.ErrInvalidParameter},
		{"window too large", 10, SimpleReturn, timeseries.ErrInsufficientData},
		{"unknown kind", 2, ReturnKind("pct"), timeseries.ErrInvalidParameter},
	}
	r := Returns(dailySeries(t, []float64{1, 2, 3, 4, 5}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RollingVolatility(r, tt.window, tt.kind)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSummarize(t *testing.T) {
	r := Returns(dailySeries(t, []float64{100, 110, 121, 133.1}))

	st, err := Summarize(r, SimpleReturn)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 0.1, st.Mean, 1e-9)
	assert.InDelta(t, 0, st.Std, 1e-9)
	assert.InDelta(t, 0.1, st.Median, 1e-9)
	assert.InDelta(t, 0.331, st.Cumulative, 1e-9)

	_, err = Summarize(Returns(dailySeries(t, []float64{1, 2})), SimpleReturn)
	assert.True(t, errors.Is(err, timeseries.ErrInsufficientData))
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, quantile(sorted, 0))
	assert.Equal(t, 2.5, quantile(sorted, 0.5))
	assert.Equal(t, 1.75, quantile(sorted, 0.25))
	assert.Equal(t, 4.0, quantile(sorted, 1))
}

func TestSMA(t *testing.T) {
	s := dailySeries(t, []float64{1, 2, 3, 4, 5, 6})

	sma, err := SMA(s, 3)
	require.NoError(t, err)
	require.Equal(t, s.Len(), sma.Len())

	for i := 0; i < 2; i++ {
		assert.False(t, sma.Samples[i].Valid)
	}
	want := []float64{2, 3, 4, 5}
	for i, w := range want {
		assert.True(t, sma.Samples[i+2].Valid)
		assert.InDelta(t, w, sma.Samples[i+2].Value, 1e-12)
	}
	assert.Equal(t, s.Times()[5], sma.Samples[5].Time)
}

func TestSMAWindowLongerThanSeries(t *testing.T) {
	s := dailySeries(t, []float64{1, 2, 3})

	sma, err := SMA(s, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, sma.Len())
	assert.Equal(t, 0, timeseries.CountValid(sma.Samples))
}

func TestEMA(t *testing.T) {
	s := dailySeries(t, []float64{10, 20, 30})

	ema, err := EMA(s, 3) // alpha = 0.5
	require.NoError(t, err)
	require.Equal(t, 3, ema.Len())

	assert.Equal(t, 3, timeseries.CountValid(ema.Samples))
	assert.InDelta(t, 10, ema.Samples[0].Value, 1e-12)
	assert.InDelta(t, 15, ema.Samples[1].Value, 1e-12)
	assert.InDelta(t, 22.5, ema.Samples[2].Value, 1e-12)
}

func TestMovingAverage(t *testing.T) {
	s := dailySeries(t, []float64{1, 2, 3, 4})

	for _, kind := range []MAKind{SMAKind, EMAKind} {
		out, err := MovingAverage(s, kind, 2)
		require.NoError(t, err)
		assert.Equal(t, string(kind), out.Kind)
		assert.Equal(t, s.Len(), out.Len())
	}

	_, err := MovingAverage(s, MAKind("wma"), 2)
	assert.True(t, errors.Is(err, timeseries.ErrInvalidParameter))

	_, err = MovingAverage(s, SMAKind, 0)
	assert.True(t, errors.Is(err, timeseries.ErrInvalidParameter))
}

func TestOLS(t *testing.T) {
	// y = 3 + 2x
	x := [][]float64{{1, 0}, {1, 1}, {1, 2}, {1, 3}}
	y := []float64{3, 5, 7, 9}

	reg, err := OLS(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 3, reg.Coeffs[0], 1e-9)
	assert.InDelta(t, 2, reg.Coeffs[1], 1e-9)
	assert.InDelta(t, 0, reg.SSE, 1e-12)

	_, err = OLS([][]float64{{1, 2}, {1, 2}, {1, 2}}, []float64{1, 2, 3})
	assert.True(t, errors.Is(err, errSingular))
}

func TestCriticalZ(t *testing.T) {
	assert.InDelta(t, 1.959964, CriticalZ(0.05), 1e-5)
	assert.InDelta(t, 2.575829, CriticalZ(0.01), 1e-5)
	assert.InDelta(t, 0.5, normalCDF(0), 1e-12)
}

func TestCalculateIC(t *testing.T) {
	ic := CalculateIC(-100, 50, 3)
	assert.InDelta(t, 206, ic.AIC, 1e-9)
	assert.InDelta(t, 206+24.0/46, ic.AICc, 1e-9)
	assert.InDelta(t, 200+3*math.Log(50), ic.BIC, 1e-9)

	assert.True(t, math.IsInf(CalculateIC(-1, 3, 3).AICc, 1))
	assert.True(t, math.IsInf(GaussianLogLik([]float64{1}, 0), -1))
}
