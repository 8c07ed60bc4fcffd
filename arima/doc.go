// Package arima implements AutoRegressive Integrated Moving Average (ARIMA) models.
//
// An ARIMA(p,d,q) model combines:
//   - AR(p): AutoRegressive component with p lags
//   - I(d): Integration (differencing) of order d
//   - MA(q): Moving Average component with q lags
//
// Estimation is by conditional sum of squares. Pure AR models are solved
// exactly by least squares; models with MA terms start from the
// Hannan-Rissanen regression and are refined iteratively. A constant is
// estimated only for undifferenced models.
//
// # Basic Usage
//
//	model := arima.New(5, 1, 0)
//	if err := model.Fit(ctx, prices); err != nil {
//	    // errors.Is(err, timeseries.ErrModelFit) for degenerate data
//	}
//
//	pred, _ := model.Forecast(14)
//	lower, upper := pred.Interval(0.05)
//
// Forecast standard errors are derived from the psi weights of the
// integrated model, so interval width never decreases with the horizon.
//
// # Residual Analysis
//
//	summary := model.Summary()
//	// summary.LjungBox tests the residuals for leftover autocorrelation
package arima
