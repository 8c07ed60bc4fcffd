package stats

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sartorproj/coincast/timeseries"
)

func TestADFStationaryProcess(t *testing.T) {
	res, err := ADF(ar1(300, 0.5, 50, 7))
	require.NoError(t, err)

	assert.True(t, res.IsStationary)
	assert.False(t, res.Degenerate)
	assert.Less(t, res.PValue, Significance)
	assert.Less(t, res.Statistic, res.CriticalValues["1%"])
	assert.Equal(t, 6, res.Lags) // floor(299^(1/3))
	require.NotNil(t, res.KPSS)
}

func TestADFRandomWalkWithDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 300)
	level := 1000.0
	for i := range values {
		level += 1 + rng.NormFloat64()
		values[i] = level
	}

	res, err := ADF(values)
	require.NoError(t, err)

	assert.False(t, res.IsStationary)
	assert.Greater(t, res.PValue, Significance)
}

func TestADFDeterministicInputs(t *testing.T) {
	t.Run("constant is stationary", func(t *testing.T) {
		values := make([]float64, 30)
		for i := range values {
			values[i] = 5
		}
		res, err := ADF(values)
		require.NoError(t, err)
		assert.True(t, res.IsStationary)
		assert.True(t, res.Degenerate)
		assert.True(t, math.IsInf(res.Statistic, -1))
	})

	t.Run("linear trend is not stationary", func(t *testing.T) {
		res, err := ADF(linearPrices(100))
		require.NoError(t, err)
		assert.False(t, res.IsStationary)
		assert.True(t, res.Degenerate)
		assert.Equal(t, 0, res.Lags)
	})
}

func TestADFErrors(t *testing.T) {
	_, err := ADF([]float64{1, 2, 3})
	assert.True(t, errors.Is(err, timeseries.ErrInsufficientData))

	values := linearPrices(20)
	values[4] = math.NaN()
	_, err = ADF(values)
	assert.True(t, errors.Is(err, timeseries.ErrInvalidDomain))
}

func TestStationarityResultJSON(t *testing.T) {
	constant := make([]float64, 30)
	for i := range constant {
		constant[i] = 7
	}

	tests := []struct {
		name     string
		values   []float64
		wantNull bool
	}{
		{"constant", constant, true},
		{"exact fit", linearPrices(50), false},
		{"ar1", ar1(200, 0.5, 50, 7), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ADF(tt.values)
			require.NoError(t, err)

			data, err := json.Marshal(res)
			require.NoError(t, err)

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Contains(t, decoded, "statistic")
			if tt.wantNull {
				assert.Nil(t, decoded["statistic"])
			} else {
				assert.InDelta(t, res.Statistic, decoded["statistic"], 1e-9)
			}
			assert.Equal(t, res.Degenerate, decoded["degenerate"])
			assert.InDelta(t, res.PValue, decoded["p_value"], 1e-12)
			assert.Contains(t, decoded, "kpss")
		})
	}
}

func TestMackinnonPValue(t *testing.T) {
	// Critical values should map back to roughly their nominal levels.
	assert.InDelta(t, 0.05, mackinnonPValue(-2.86), 0.01)
	assert.InDelta(t, 0.01, mackinnonPValue(-3.43), 0.005)
	assert.Equal(t, 1.0, mackinnonPValue(math.Inf(1)))
	assert.Equal(t, 0.0, mackinnonPValue(math.Inf(-1)))

	prev := 0.0
	for stat := -6.0; stat <= 2; stat += 0.25 {
		p := mackinnonPValue(stat)
		assert.GreaterOrEqual(t, p, prev, "stat %.2f", stat)
		prev = p
	}
}

func TestADFCriticalValues(t *testing.T) {
	cv := adfCriticalValues(1000)
	assert.InDelta(t, -3.437, cv["1%"], 0.01)
	assert.InDelta(t, -2.864, cv["5%"], 0.01)
	assert.InDelta(t, -2.568, cv["10%"], 0.01)
}

func TestKPSS(t *testing.T) {
	noise := KPSS(ar1(300, 0.3, 10, 11), 0)
	require.NotNil(t, noise)
	assert.Equal(t, 16, noise.Lags)

	trending := KPSS(linearPrices(300), 0)
	require.NotNil(t, trending)
	assert.False(t, trending.IsStationary)
	assert.Equal(t, 0.01, trending.PValue)
	assert.Less(t, noise.Statistic, trending.Statistic)

	assert.Nil(t, KPSS([]float64{1, 2, 3}, 0))
}

func TestStationarize(t *testing.T) {
	t.Run("linear series is differenced once", func(t *testing.T) {
		prices := linearPrices(100)
		d, err := Stationarize(prices)
		require.NoError(t, err)

		assert.False(t, d.Initial.IsStationary)
		assert.True(t, d.Differenced)
		require.NotNil(t, d.AfterDiff)
		assert.True(t, d.AfterDiff.IsStationary)
		assert.Empty(t, d.Warning)
		assert.Equal(t, 1, d.Order())
		assert.Len(t, d.Values, 99)
		assert.InDelta(t, 2, d.Values[0], 1e-12)
	})

	t.Run("tiny slope is stationary after one difference", func(t *testing.T) {
		values := make([]float64, 200)
		for i := range values {
			values[i] = 1 + 1e-7*float64(i)
		}
		d, err := Stationarize(values)
		require.NoError(t, err)

		assert.True(t, d.Differenced)
		require.NotNil(t, d.AfterDiff)
		assert.True(t, d.AfterDiff.IsStationary)
		assert.True(t, d.AfterDiff.Degenerate)
		assert.Empty(t, d.Warning)
	})

	t.Run("stationary input is left alone", func(t *testing.T) {
		values := ar1(200, 0.2, 100, 5)
		d, err := Stationarize(values)
		require.NoError(t, err)

		assert.False(t, d.Differenced)
		assert.Nil(t, d.AfterDiff)
		assert.Equal(t, 0, d.Order())
		assert.Equal(t, values, d.Values)
	})

	t.Run("geometric growth warns after one difference", func(t *testing.T) {
		values := make([]float64, 60)
		for i := range values {
			values[i] = 100 * math.Pow(1.05, float64(i))
		}
		d, err := Stationarize(values)
		require.NoError(t, err)

		assert.True(t, d.Differenced)
		assert.NotEmpty(t, d.Warning)
		assert.Len(t, d.Values, 59)
		require.NotNil(t, d.AfterDiff)
		assert.False(t, d.AfterDiff.IsStationary)
	})
}
