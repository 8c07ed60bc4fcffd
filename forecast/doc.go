// Package forecast produces multi-step price forecasts with interval bounds.
//
// Two strategies implement the Forecaster interface:
//
//   - trend_seasonal: linear trend plus additive per-phase seasonality,
//     with regression prediction intervals.
//   - autoregressive: ARIMA(5,d,0) where d follows the unit-root test,
//     with intervals from the model's psi weights.
//
// Both return a Result of the same shape:
//
//	req := forecast.DefaultRequest()
//	req.Strategy = forecast.TrendSeasonal
//	req.Horizon = 14
//	res, err := forecast.Forecast(ctx, series, req)
//	if errors.Is(err, timeseries.ErrInsufficientData) {
//	    // fewer than two seasonal cycles in the training window
//	}
package forecast
