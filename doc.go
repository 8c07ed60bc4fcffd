// Package coincast provides price analytics and forecasting for
// cryptocurrency time series.
//
// It turns a fetched price history into returns, rolling volatility, moving
// averages, stationarity tests, seasonal decompositions, correlograms and
// short-horizon forecasts with prediction intervals. All operations are pure
// functions over an immutable series; nothing is cached and no network I/O
// happens in the core.
//
// # Quick Start
//
// Build a series and forecast it:
//
//	series, err := timeseries.Build(points, timeseries.WithName("bitcoin/usd"))
//	req := forecast.DefaultRequest()
//	req.Horizon = 14
//	result, err := forecast.Forecast(ctx, series, req)
//	lower, upper := result.Lower[0], result.Upper[0]
//
// Run a whole analysis with a per-step time budget:
//
//	report, err := analysis.New(logger).Run(ctx, series, analysis.DefaultRequest())
//
// # Packages
//
//   - timeseries: validated price series, CSV loading, error taxonomy
//   - stats: returns, moving averages, ADF/KPSS, decomposition, ACF/PACF
//   - arima: fixed-order ARIMA fitting and forecasting
//   - forecast: trend_seasonal and autoregressive strategies, backtesting
//   - marketdata: CoinGecko market_chart decoding and file-backed provider
//   - analysis: request orchestration and reports
//   - config: YAML and environment configuration
//
// The coincast command in cmd/coincast exposes these as subcommands.
//
// # References
//
//   - Hyndman, R.J., & Athanasopoulos, G. (2021). Forecasting: Principles and Practice
//   - Box, G. E. P., & Jenkins, G. M. (1976). Time Series Analysis: Forecasting and Control
package coincast
