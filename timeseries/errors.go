package timeseries

import "errors"

// Error taxonomy shared by every analysis package. Operations wrap one of
// these with details, so callers match with errors.Is.
var (
	// ErrValidation reports a malformed input series.
	ErrValidation = errors.New("invalid series")
	// ErrInsufficientData reports too few points for a window, period or horizon.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidParameter reports an out-of-range configuration value.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidDomain reports a mathematically undefined operation.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrModelFit reports a forecasting model that could not be estimated.
	ErrModelFit = errors.New("model fit failed")
	// ErrTimeout reports a step that exceeded its wall-clock budget.
	ErrTimeout = errors.New("time budget exceeded")
)
