package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sartorproj/coincast/forecast"
	"github.com/sartorproj/coincast/marketdata"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func weeklySeries(t *testing.T, n int) *timeseries.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	points := make([]timeseries.TimePoint, n)
	for i := range points {
		price := 1000 + 0.5*float64(i) + 20*math.Sin(2*math.Pi*float64(i)/7) + rng.NormFloat64()
		points[i] = timeseries.TimePoint{Time: epoch.AddDate(0, 0, i), Price: price}
	}
	s, err := timeseries.Build(points, timeseries.WithName("bitcoin/usd"))
	require.NoError(t, err)
	return s
}

func TestRunAllSteps(t *testing.T) {
	var buf bytes.Buffer
	a := New(zerolog.New(&buf))

	report, err := a.Run(context.Background(), weeklySeries(t, 200), DefaultRequest())
	require.NoError(t, err)
	require.False(t, report.Failed(), "errors: %v", report.Errors)

	_, err = uuid.Parse(report.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, "bitcoin/usd", report.Series.Name)
	assert.Equal(t, 200, report.Series.Points)
	assert.Equal(t, 24*time.Hour, report.Series.Step)

	require.NotNil(t, report.Returns)
	assert.Equal(t, 199, report.Returns.Len())
	require.NotNil(t, report.Volatility)
	assert.Equal(t, 199, report.Volatility.Len())
	require.NotNil(t, report.Summary)
	require.Len(t, report.MovingAverages, 2)
	assert.Equal(t, 7, report.MovingAverages[0].Window)
	assert.Equal(t, 30, report.MovingAverages[1].Window)
	assert.NotNil(t, report.Stationarity)
	require.NotNil(t, report.Decomposition)
	assert.Equal(t, 7, report.Decomposition.Period)
	require.NotNil(t, report.Autocorrelation)
	assert.Equal(t, 40, len(report.Autocorrelation.ACF.Values)-1)
	require.NotNil(t, report.Forecast)
	assert.Len(t, report.Forecast.Point, 30)

	logs := buf.String()
	assert.Equal(t, len(AllSteps), strings.Count(logs, `"message":"step finished"`))
	assert.Contains(t, logs, report.RequestID)
	assert.Contains(t, logs, `"message":"analysis finished"`)
}

func TestRunRecordsSectionErrors(t *testing.T) {
	req := DefaultRequest()
	req.VolatilityWindow = 1000
	req.DecompositionPeriod = 0
	req.MaxLag = 150
	req.Forecast.Horizon = 0

	report, err := New(zerolog.Nop()).Run(context.Background(), weeklySeries(t, 200), req)
	require.NoError(t, err)
	require.True(t, report.Failed())

	tests := []struct {
		step Step
		want error
	}{
		{StepVolatility, timeseries.ErrInsufficientData},
		{StepDecomposition, timeseries.ErrInvalidParameter},
		{StepAutocorrelation, timeseries.ErrInvalidParameter},
		{StepForecast, timeseries.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			assert.True(t, errors.Is(report.Err(tt.step), tt.want), "got %v", report.Err(tt.step))
			assert.NotEmpty(t, report.Errors[tt.step])
		})
	}

	assert.Nil(t, report.Volatility)
	assert.Nil(t, report.Decomposition)
	assert.Nil(t, report.Autocorrelation)
	assert.Nil(t, report.Forecast)

	// Independent sections are unaffected.
	assert.NoError(t, report.Err(StepSummary))
	assert.NotNil(t, report.Summary)
	assert.NotNil(t, report.MovingAverages)
	assert.NotNil(t, report.Stationarity)
	assert.Len(t, report.Errors, 4)
}

func TestRunSelectedSteps(t *testing.T) {
	req := DefaultRequest()
	req.Steps = []Step{StepForecast, StepReturns}
	req.Forecast.Strategy = forecast.TrendSeasonal
	req.Forecast.Horizon = 7

	report, err := New(zerolog.Nop()).Run(context.Background(), weeklySeries(t, 100), req)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	assert.NotNil(t, report.Returns)
	require.NotNil(t, report.Forecast)
	assert.Equal(t, forecast.TrendSeasonal, report.Forecast.Model)
	assert.Nil(t, report.Summary)
	assert.Nil(t, report.Decomposition)
	assert.Nil(t, report.MovingAverages)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := DefaultRequest()
	req.Steps = []Step{StepSummary, StepForecast}
	report, err := New(zerolog.Nop()).Run(ctx, weeklySeries(t, 100), req)
	require.NoError(t, err)

	for _, step := range req.Steps {
		assert.True(t, errors.Is(report.Err(step), timeseries.ErrTimeout), "step %s: %v", step, report.Err(step))
	}
	assert.Nil(t, report.Summary)
	assert.Nil(t, report.Forecast)
}

func TestRunInvalidRequest(t *testing.T) {
	a := New(zerolog.Nop())
	s := weeklySeries(t, 50)

	_, err := a.Run(context.Background(), nil, DefaultRequest())
	assert.True(t, errors.Is(err, timeseries.ErrValidation))

	tests := []struct {
		name   string
		modify func(r *Request)
	}{
		{"no coin", func(r *Request) { r.Coin = "" }},
		{"no currency", func(r *Request) { r.Currency = "" }},
		{"negative days", func(r *Request) { r.Days = -1 }},
		{"zero budget", func(r *Request) { r.StepBudget = 0 }},
		{"unknown step", func(r *Request) { r.Steps = []Step{"sentiment"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRequest()
			tt.modify(&req)
			_, err := a.Run(context.Background(), s, req)
			assert.True(t, errors.Is(err, timeseries.ErrInvalidParameter), "got %v", err)
		})
	}
}

func TestRunWarnsOnGaps(t *testing.T) {
	points := make([]timeseries.TimePoint, 0, 40)
	for i := 0; i < 40; i++ {
		if i >= 20 && i < 25 {
			continue
		}
		points = append(points, timeseries.TimePoint{Time: epoch.AddDate(0, 0, i), Price: 100 + float64(i%5)})
	}
	s, err := timeseries.Build(points)
	require.NoError(t, err)

	req := DefaultRequest()
	req.Steps = []Step{StepReturns}
	report, err := New(zerolog.Nop()).Run(context.Background(), s, req)
	require.NoError(t, err)
	require.Len(t, report.Series.Gaps, 1)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "1 gaps")
}

func TestRunSharesStationarityDecision(t *testing.T) {
	t.Run("sections report one decision", func(t *testing.T) {
		req := DefaultRequest()
		req.Steps = []Step{StepStationarity, StepAutocorrelation, StepForecast}

		report, err := New(zerolog.Nop()).Run(context.Background(), weeklySeries(t, 200), req)
		require.NoError(t, err)
		require.False(t, report.Failed(), "errors: %v", report.Errors)

		require.NotNil(t, report.Stationarity)
		assert.Same(t, report.Stationarity, report.Autocorrelation.Stationarity)
		assert.Same(t, report.Stationarity, report.Forecast.Stationarity)
	})

	t.Run("training window decision is flagged when it differs", func(t *testing.T) {
		// A steep trend followed by a flat, noisy tail.
		rng := rand.New(rand.NewSource(5))
		points := make([]timeseries.TimePoint, 300)
		for i := range points {
			price := 100 + 5*float64(i) + rng.NormFloat64()
			if i >= 240 {
				price = 1300 + rng.NormFloat64()
			}
			points[i] = timeseries.TimePoint{Time: epoch.AddDate(0, 0, i), Price: price}
		}
		s, err := timeseries.Build(points)
		require.NoError(t, err)

		req := DefaultRequest()
		req.Steps = []Step{StepStationarity, StepForecast}
		req.Forecast.TrainWindow = 60
		req.Forecast.Horizon = 5

		report, err := New(zerolog.Nop()).Run(context.Background(), s, req)
		require.NoError(t, err)
		require.False(t, report.Failed(), "errors: %v", report.Errors)

		require.NotNil(t, report.Forecast.Stationarity)
		assert.Equal(t, 1, report.Stationarity.Order())
		assert.Equal(t, 0, report.Forecast.Stationarity.Order())
		assert.Contains(t, report.Warnings,
			"forecast: training window of 60 points differenced 0 times, full series 1 times")
	})
}

func TestBudgeted(t *testing.T) {
	t.Run("returns value", func(t *testing.T) {
		v, err := budgeted(context.Background(), time.Second, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("ignores context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, err := budgeted(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		assert.True(t, errors.Is(err, timeseries.ErrTimeout), "got %v", err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("context error", func(t *testing.T) {
		_, err := budgeted(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.True(t, errors.Is(err, timeseries.ErrTimeout), "got %v", err)
	})

	t.Run("panic", func(t *testing.T) {
		_, err := budgeted(context.Background(), time.Second, func(context.Context) (int, error) {
			var m map[string]int
			m["boom"]++
			return 0, nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic")
	})

	t.Run("passes errors through", func(t *testing.T) {
		_, err := budgeted(context.Background(), time.Second, func(context.Context) (int, error) {
			return 0, timeseries.ErrModelFit
		})
		assert.True(t, errors.Is(err, timeseries.ErrModelFit))
	})
}

func TestRequestSteps(t *testing.T) {
	assert.Equal(t, AllSteps, DefaultRequest().steps())

	req := DefaultRequest()
	req.Steps = []Step{StepForecast, StepReturns, StepForecast}
	assert.Equal(t, []Step{StepReturns, StepForecast}, req.steps())
}

func TestLoadSeries(t *testing.T) {
	dir := t.TempDir()
	payload := `{"prices": [[1704067200000, 42283.58], [1704153600000, 44179.92], [1704240000000, 44945.1]]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bitcoin_usd.json"), []byte(payload), 0o644))

	req := DefaultRequest()
	req.Coin = "BTC"
	req.Days = 0

	s, err := LoadSeries(context.Background(), marketdata.NewFileProvider(dir), req)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin/usd", s.Name())
	assert.Equal(t, 3, s.Len())

	req.Coin = "ETH"
	_, err = LoadSeries(context.Background(), marketdata.NewFileProvider(dir), req)
	assert.True(t, errors.Is(err, marketdata.ErrNotFound))
}

func TestLoadSeriesResample(t *testing.T) {
	dir := t.TempDir()
	var rows []string
	for i := 0; i < 10; i++ {
		if i >= 3 && i < 6 {
			continue
		}
		rows = append(rows, fmt.Sprintf("[%d, %d]", epoch.AddDate(0, 0, i).UnixMilli(), 100+i))
	}
	payload := `{"prices": [` + strings.Join(rows, ",") + `]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bitcoin_usd.json"), []byte(payload), 0o644))

	req := DefaultRequest()
	req.Days = 0
	p := marketdata.NewFileProvider(dir)

	raw, err := LoadSeries(context.Background(), p, req)
	require.NoError(t, err)
	assert.Equal(t, 7, raw.Len())
	assert.Len(t, raw.Gaps(), 1)

	req.Resample = 24 * time.Hour
	s, err := LoadSeries(context.Background(), p, req)
	require.NoError(t, err)

	assert.Equal(t, "bitcoin/usd", s.Name())
	require.Equal(t, 10, s.Len())
	assert.Equal(t, 24*time.Hour, s.Step())
	assert.Empty(t, s.Gaps())
	for i, ts := range s.Times() {
		assert.Equal(t, epoch.AddDate(0, 0, i), ts)
	}
	assert.Equal(t, []float64{100, 101, 102, 102, 102, 102, 106, 107, 108, 109}, s.Prices())

	req.Steps = []Step{StepReturns}
	report, err := New(zerolog.Nop()).Run(context.Background(), s, req)
	require.NoError(t, err)
	assert.Empty(t, report.Series.Gaps)
	assert.Empty(t, report.Warnings)

	req.Resample = -time.Hour
	_, err = LoadSeries(context.Background(), p, req)
	assert.True(t, errors.Is(err, timeseries.ErrInvalidParameter))
	assert.True(t, errors.Is(req.Validate(), timeseries.ErrInvalidParameter))
}

func TestDefaultRequestUsesKnownKinds(t *testing.T) {
	req := DefaultRequest()
	assert.NoError(t, req.Validate())
	assert.NoError(t, req.ReturnKind.Validate())
	assert.NoError(t, req.ACFTarget.Validate())
	assert.NoError(t, req.Forecast.Validate())
	assert.Equal(t, stats.SMAKind, req.MAKind)
}
