package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeChart stores a market_chart payload with a weekly price pattern.
func writeChart(t *testing.T, dir string, days int) {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var rows []string
	for i := 0; i < days; i++ {
		price := 40000 + 10*float64(i) + 500*math.Sin(2*math.Pi*float64(i)/7) + float64((i*37)%11)
		rows = append(rows, fmt.Sprintf("[%d, %.2f]", start.AddDate(0, 0, i).UnixMilli(), price))
	}
	payload := `{"prices": [` + strings.Join(rows, ",") + `]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bitcoin_usd.json"), []byte(payload), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestDecomposeCommand(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, 120)

	out, err := execute(t, "decompose",
		"--config", filepath.Join(dir, "none.yaml"),
		"--data-dir", dir,
		"--coin", "BTC",
		"--days", "0",
		"--period", "7",
		"--log-level", "error",
	)
	require.NoError(t, err)

	var report struct {
		Series struct {
			Name   string `yaml:"name"`
			Points int    `yaml:"points"`
		} `yaml:"series"`
		Decomposition struct {
			Period  int       `yaml:"period"`
			Pattern []float64 `yaml:"pattern"`
		} `yaml:"decomposition"`
		Forecast interface{} `yaml:"forecast"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "bitcoin/usd", report.Series.Name)
	assert.Equal(t, 120, report.Series.Points)
	assert.Equal(t, 7, report.Decomposition.Period)
	assert.Len(t, report.Decomposition.Pattern, 7)
	assert.Nil(t, report.Forecast)
}

func TestForecastCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, 90)

	out, err := execute(t, "forecast",
		"--config", filepath.Join(dir, "none.yaml"),
		"--data-dir", dir,
		"--days", "0",
		"--strategy", "trend_seasonal",
		"--horizon", "10",
		"--format", "json",
		"--log-level", "error",
	)
	require.NoError(t, err)

	var report struct {
		RequestID string `json:"request_id"`
		Forecast  struct {
			Model string    `json:"model"`
			Point []float64 `json:"point"`
			Lower []float64 `json:"lower"`
			Upper []float64 `json:"upper"`
		} `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.RequestID)
	assert.Equal(t, "trend_seasonal", report.Forecast.Model)
	require.Len(t, report.Forecast.Point, 10)
	for i := range report.Forecast.Point {
		assert.LessOrEqual(t, report.Forecast.Lower[i], report.Forecast.Point[i])
		assert.LessOrEqual(t, report.Forecast.Point[i], report.Forecast.Upper[i])
	}
}

func TestCommandReportsFailedSteps(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, 10)

	out, err := execute(t, "forecast",
		"--config", filepath.Join(dir, "none.yaml"),
		"--data-dir", dir,
		"--days", "0",
		"--strategy", "trend_seasonal",
		"--period", "7",
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.Contains(t, out, "errors:")
	assert.Contains(t, out, "insufficient data")
}

func TestCSVInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")

	var b strings.Builder
	b.WriteString("timestamp,price\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "%s,%.2f\n", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"), 3000+float64(i%9)*4)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	out, err := execute(t, "stationarity",
		"--config", filepath.Join(dir, "none.yaml"),
		"--csv", path,
		"--coin", "eth",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "ethereum/usd")
	assert.Contains(t, out, "stationarity:")
}

func TestBacktestCommand(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, 140)

	out, err := execute(t, "backtest",
		"--config", filepath.Join(dir, "none.yaml"),
		"--data-dir", dir,
		"--days", "0",
		"--holdout", "14",
		"--log-level", "error",
	)
	require.NoError(t, err)

	var result struct {
		Evaluations map[string]struct {
			Holdout int     `yaml:"holdout"`
			RMSE    float64 `yaml:"rmse"`
		} `yaml:"evaluations"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	require.Contains(t, result.Evaluations, "trend_seasonal")
	assert.Equal(t, 14, result.Evaluations["trend_seasonal"].Holdout)
}

func TestInvalidInputs(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, 30)
	cfg := filepath.Join(dir, "none.yaml")

	_, err := execute(t, "analyze", "--config", cfg, "--data-dir", dir, "--coin", "doge", "--log-level", "error")
	assert.ErrorContains(t, err, "not found")

	_, err = execute(t, "stationarity", "--config", cfg, "--data-dir", dir, "--format", "xml", "--log-level", "error")
	assert.ErrorContains(t, err, "unknown output format")

	_, err = execute(t, "stationarity", "--config", cfg, "--data-dir", dir, "--log-level", "shout")
	assert.ErrorContains(t, err, "invalid config")
}

// writeCSV stores daily prices from March 2024, skipping days where price
// returns false.
func writeCSV(t *testing.T, dir string, days int, price func(day int) (float64, bool)) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,price\n")
	for i := 0; i < days; i++ {
		p, ok := price(i)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s,%.2f\n", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"), p)
	}
	path := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestResampleFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, 40, func(day int) (float64, bool) {
		return 3000 + float64(day%9)*4, day < 10 || day >= 15
	})

	tests := []struct {
		name     string
		args     []string
		wantLen  int
		wantGaps int
	}{
		{"raw spacing", nil, 35, 1},
		{"daily grid", []string{"--resample", "24h"}, 40, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"stationarity",
				"--config", filepath.Join(dir, "none.yaml"),
				"--csv", path,
				"--log-level", "error",
			}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			var report struct {
				Series struct {
					Points int           `yaml:"points"`
					Gaps   []interface{} `yaml:"gaps"`
				} `yaml:"series"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(out), &report))
			assert.Equal(t, tt.wantLen, report.Series.Points)
			assert.Len(t, report.Series.Gaps, tt.wantGaps)
		})
	}

	_, err := execute(t, "stationarity", "--config", filepath.Join(dir, "none.yaml"), "--csv", path, "--resample", "soon")
	assert.Error(t, err)
}

func TestStationarityJSONWritesInfiniteStatisticAsNull(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, 30, func(int) (float64, bool) { return 5, true })

	out, err := execute(t, "stationarity",
		"--config", filepath.Join(dir, "none.yaml"),
		"--csv", path,
		"--format", "json",
		"--log-level", "error",
	)
	require.NoError(t, err)

	var report struct {
		Stationarity struct {
			Initial map[string]interface{} `json:"initial"`
		} `json:"stationarity"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Contains(t, report.Stationarity.Initial, "statistic")
	assert.Nil(t, report.Stationarity.Initial["statistic"])
	assert.Equal(t, true, report.Stationarity.Initial["degenerate"])
	assert.Equal(t, true, report.Stationarity.Initial["is_stationary"])
}
