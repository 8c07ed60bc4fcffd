// Package stats provides the numeric analyses run over a price series.
//
// Every function is pure: it reads a timeseries.Series or a value slice and
// returns a new result. Aligned outputs use timeseries.Sample so positions
// without a value are explicit rather than NaN.
//
// # Returns and Volatility
//
//	r := stats.Returns(series)                       // len = series.Len()-1
//	vol, err := stats.RollingVolatility(r, 30, stats.LogReturn)
//	summary, err := stats.Summarize(r, stats.SimpleReturn)
//
// # Smoothing
//
//	sma, err := stats.SMA(series, 20) // first 19 samples missing
//	ema, err := stats.EMA(series, 20) // seeded with the first price
//
// # Stationarity
//
// ADF tests for a unit root (constant, no trend). Stationarize applies the
// single-pass policy: difference once when p > 0.05, re-test, and carry a
// warning if the differenced values still look non-stationary.
//
//	adf, err := stats.ADF(series.Prices())
//	decision, err := stats.Stationarize(series.Prices())
//	// decision.Values holds the (possibly) differenced input
//
// # Decomposition
//
//	d, err := stats.Decompose(series, stats.Additive, 7)
//	// d.Trend, d.Seasonal, d.Residual are aligned with the series
//
// # Autocorrelation
//
// The bound z(1-alpha/2)/sqrt(n) is applied to every lag.
//
//	acf, err := stats.ACF(values, 20, 0.05)
//	c, err := stats.Autocorrelation(series, stats.ReturnsTarget, 20, 0.05)
//	c.ACF.Significant()
//
// # Diagnostics
//
//	lb := stats.LjungBox(residuals, 10, p+q)
//	ic := stats.CalculateIC(logLik, nObs, nParams)
package stats
