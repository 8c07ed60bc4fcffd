package forecast

import (
	"context"
	"fmt"

	"github.com/sartorproj/coincast/arima"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

// AutoregressiveModel fits ARIMA(Order, d, 0) where d is 1 if the unit-root
// test calls for differencing and 0 otherwise. The order is fixed; there is
// no information-criterion search.
type AutoregressiveModel struct {
	Order int
	Alpha float64
	// Decision, when set and made over the same prices, replaces the
	// unit-root test.
	Decision *stats.StationarityDecision
}

func (m *AutoregressiveModel) Name() Strategy { return Autoregressive }

// Forecast returns ErrModelFit when the model cannot be estimated, for
// instance on a constant series, and ErrTimeout when ctx expires mid-fit.
func (m *AutoregressiveModel) Forecast(ctx context.Context, s *timeseries.Series, horizon int) (*Result, error) {
	if err := validateHorizon(horizon); err != nil {
		return nil, err
	}
	if err := validateAlpha(m.Alpha); err != nil {
		return nil, err
	}
	if m.Order < 1 {
		return nil, fmt.Errorf("%w: autoregressive order must be positive, got %d", timeseries.ErrInvalidParameter, m.Order)
	}

	prices := s.Prices()
	decision := m.Decision
	if !decision.Covers(len(prices)) {
		var err error
		if decision, err = stats.Stationarize(prices); err != nil {
			return nil, err
		}
	}

	model := arima.New(m.Order, decision.Order(), 0)
	if err := model.Fit(ctx, prices); err != nil {
		return nil, err
	}

	pred, err := model.Forecast(horizon)
	if err != nil {
		return nil, err
	}
	lower, upper := pred.Interval(m.Alpha)

	res := newResult(Autoregressive, s, horizon, m.Alpha)
	copy(res.Point, pred.Mean)
	copy(res.Lower, lower)
	copy(res.Upper, upper)
	res.Diagnostics = model.Summary()
	res.Stationarity = decision
	res.Warning = decision.Warning
	return res, nil
}
