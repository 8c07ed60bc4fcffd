package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/sartorproj/coincast/timeseries"
)

// Evaluation scores a forecast against held-out observations.
type Evaluation struct {
	Strategy Strategy  `json:"strategy" yaml:"strategy"`
	Holdout  int       `json:"holdout" yaml:"holdout"`
	Actual   []float64 `json:"actual" yaml:"actual"`
	Result   *Result   `json:"result" yaml:"result"`
	RMSE     float64   `json:"rmse" yaml:"rmse"`
	MAE      float64   `json:"mae" yaml:"mae"`
	MAPE     float64   `json:"mape" yaml:"mape"` // percent
	// Coverage is the share of held-out prices inside the interval.
	Coverage float64 `json:"coverage" yaml:"coverage"`
}

// HoldoutSize picks a test size of a fifth of the series, at least one
// seasonal period, clamped to [3, 30].
func HoldoutSize(n, period int) int {
	size := n / 5
	if period > 0 {
		size = max(size, period)
	}
	return max(min(size, 30), 3)
}

// Backtest withholds the last holdout points, forecasts them from the rest
// and reports accuracy. The request's horizon is replaced by holdout; a
// holdout of 0 picks one with HoldoutSize.
func Backtest(ctx context.Context, s *timeseries.Series, r Request, holdout int) (*Evaluation, error) {
	if holdout < 0 {
		return nil, fmt.Errorf("%w: holdout must not be negative, got %d", timeseries.ErrInvalidParameter, holdout)
	}
	if holdout == 0 {
		holdout = HoldoutSize(s.Len(), r.Period)
	}
	if holdout > s.Len()-2 {
		return nil, fmt.Errorf("%w: holdout %d leaves fewer than 2 of %d points", timeseries.ErrInsufficientData, holdout, s.Len())
	}

	points := s.Points()
	cut := len(points) - holdout
	train, err := timeseries.Build(points[:cut], timeseries.WithName(s.Name()))
	if err != nil {
		return nil, err
	}

	r.Horizon = holdout
	res, err := Forecast(ctx, train, r)
	if err != nil {
		return nil, err
	}

	actual := make([]float64, holdout)
	inside := 0
	for i, p := range points[cut:] {
		actual[i] = p.Price
		if p.Price >= res.Lower[i] && p.Price <= res.Upper[i] {
			inside++
		}
	}

	rmse, mae, mape := accuracy(actual, res.Point)
	return &Evaluation{
		Strategy: r.Strategy,
		Holdout:  holdout,
		Actual:   actual,
		Result:   res,
		RMSE:     rmse,
		MAE:      mae,
		MAPE:     mape,
		Coverage: float64(inside) / float64(holdout),
	}, nil
}

// accuracy calculates forecast error metrics over the common prefix.
func accuracy(actual, predicted []float64) (rmse, mae, mape float64) {
	n := min(len(actual), len(predicted))
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		d := actual[i] - predicted[i]
		rmse += d * d
		mae += math.Abs(d)
		if actual[i] != 0 {
			mape += math.Abs(d) / math.Abs(actual[i]) * 100
		}
	}
	return math.Sqrt(rmse / float64(n)), mae / float64(n), mape / float64(n)
}
