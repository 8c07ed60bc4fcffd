package stats

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/sartorproj/coincast/timeseries"
)

// MAKind selects the moving average flavour.
type MAKind string

const (
	SMAKind MAKind = "sma"
	EMAKind MAKind = "ema"
)

// MovingAverage dispatches to SMA or EMA.
func MovingAverage(s *timeseries.Series, kind MAKind, window int) (*RollingStat, error) {
	switch kind {
	case SMAKind:
		return SMA(s, window)
	case EMAKind:
		return EMA(s, window)
	}
	return nil, fmt.Errorf("%w: unknown moving average kind %q", timeseries.ErrInvalidParameter, kind)
}

// SMA computes the unweighted trailing mean. The first window-1 samples are
// missing; a window longer than the series leaves every sample missing.
func SMA(s *timeseries.Series, window int) (*RollingStat, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: moving average window must be positive, got %d", timeseries.ErrInvalidParameter, window)
	}

	prices := s.Prices()
	times := s.Times()

	sma := trend.NewSmaWithPeriod[float64](window)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(prices)))

	// The indicator only emits once the window has filled.
	offset := len(prices) - len(values)
	samples := make([]timeseries.Sample, len(prices))
	for i := range prices {
		if i < offset {
			samples[i] = timeseries.Missing(times[i])
			continue
		}
		samples[i] = timeseries.Present(times[i], values[i-offset])
	}

	return &RollingStat{Window: window, Kind: string(SMAKind), Samples: samples}, nil
}

// EMA computes exponential smoothing with alpha = 2/(window+1), seeded with
// the first price. Being recursive from the first point it has no missing
// prefix, matching pandas ewm(span=window, adjust=False).
func EMA(s *timeseries.Series, window int) (*RollingStat, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: moving average window must be positive, got %d", timeseries.ErrInvalidParameter, window)
	}

	prices := s.Prices()
	times := s.Times()
	alpha := 2.0 / float64(window+1)

	samples := make([]timeseries.Sample, len(prices))
	ema := prices[0]
	samples[0] = timeseries.Present(times[0], ema)
	for i := 1; i < len(prices); i++ {
		ema = alpha*prices[i] + (1-alpha)*ema
		samples[i] = timeseries.Present(times[i], ema)
	}

	return &RollingStat{Window: window, Kind: string(EMAKind), Samples: samples}, nil
}
