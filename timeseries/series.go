// Package timeseries provides the validated price series every analysis runs on.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// gapFactor marks an interval as a gap when it exceeds the median step by this factor.
const gapFactor = 1.5

// TimePoint is a single raw observation supplied by the market data provider.
type TimePoint struct {
	Time  time.Time
	Price float64
}

// Gap describes an interval noticeably longer than the series' usual spacing.
type Gap struct {
	From    time.Time `json:"from" yaml:"from"`
	To      time.Time `json:"to" yaml:"to"`
	Missing int       `json:"missing" yaml:"missing"` // approximate number of absent observations
}

// Series is an immutable, validated price series ordered by time.
type Series struct {
	name   string
	times  []time.Time
	prices []float64
	step   time.Duration
	gaps   []Gap
}

// Option configures a Series at build time.
type Option func(*Series)

// WithName labels the series, e.g. "bitcoin/usd".
func WithName(name string) Option {
	return func(s *Series) {
		s.name = name
	}
}

// Build validates raw points and returns a Series.
// Points out of order are stable-sorted by time. Fewer than two points,
// non-finite or non-positive prices and duplicate timestamps are rejected
// with ErrValidation; duplicates are never silently dropped.
func Build(raw []TimePoint, opts ...Option) (*Series, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrValidation, len(raw))
	}

	for i, p := range raw {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, fmt.Errorf("%w: price at index %d is not finite", ErrValidation, i)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("%w: price at index %d must be positive, got %g", ErrValidation, i, p.Price)
		}
		if p.Time.IsZero() {
			return nil, fmt.Errorf("%w: timestamp at index %d is missing", ErrValidation, i)
		}
	}

	points := make([]TimePoint, len(raw))
	copy(points, raw)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})

	for i := 1; i < len(points); i++ {
		if points[i].Time.Equal(points[i-1].Time) {
			return nil, fmt.Errorf("%w: duplicate timestamp %s", ErrValidation, points[i].Time.Format(time.RFC3339))
		}
	}

	times := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.Time
		prices[i] = p.Price
	}

	return newSeries(times, prices, opts...), nil
}

// newSeries assembles a Series from already validated slices it takes ownership of.
func newSeries(times []time.Time, prices []float64, opts ...Option) *Series {
	s := &Series{
		times:  times,
		prices: prices,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.step = medianStep(times)
	s.gaps = findGaps(times, s.step)
	return s
}

// Name returns the series label.
func (s *Series) Name() string {
	return s.name
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.prices)
}

// At returns the i-th point.
func (s *Series) At(i int) TimePoint {
	return TimePoint{Time: s.times[i], Price: s.prices[i]}
}

// First returns the earliest point.
func (s *Series) First() TimePoint {
	return s.At(0)
}

// Last returns the latest point.
func (s *Series) Last() TimePoint {
	return s.At(len(s.prices) - 1)
}

// Times returns a copy of the timestamps.
func (s *Series) Times() []time.Time {
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// Prices returns a copy of the prices.
func (s *Series) Prices() []float64 {
	out := make([]float64, len(s.prices))
	copy(out, s.prices)
	return out
}

// Points returns a copy of the series as raw points.
func (s *Series) Points() []TimePoint {
	out := make([]TimePoint, len(s.prices))
	for i := range s.prices {
		out[i] = s.At(i)
	}
	return out
}

// Step returns the median spacing between consecutive points.
func (s *Series) Step() time.Duration {
	return s.step
}

// Gaps returns intervals longer than 1.5x the median step.
func (s *Series) Gaps() []Gap {
	out := make([]Gap, len(s.gaps))
	copy(out, s.gaps)
	return out
}

// Window returns the trailing n points as a new Series.
func (s *Series) Window(n int) (*Series, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: window must be at least 2, got %d", ErrInvalidParameter, n)
	}
	if n > s.Len() {
		return nil, fmt.Errorf("%w: window of %d exceeds series length %d", ErrInsufficientData, n, s.Len())
	}
	start := s.Len() - n
	times := make([]time.Time, n)
	prices := make([]float64, n)
	copy(times, s.times[start:])
	copy(prices, s.prices[start:])
	return newSeries(times, prices, WithName(s.name)), nil
}

// Resample places the series on a regular grid of the given step starting at
// the first timestamp, forward-filling each grid point from the latest
// observation at or before it.
func (s *Series) Resample(step time.Duration) (*Series, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: resample step must be positive", ErrInvalidParameter)
	}

	start, end := s.times[0], s.times[len(s.times)-1]
	var times []time.Time
	var prices []float64

	j := 0
	for t := start; !t.After(end); t = t.Add(step) {
		for j+1 < len(s.times) && !s.times[j+1].After(t) {
			j++
		}
		times = append(times, t)
		prices = append(prices, s.prices[j])
	}

	if len(times) < 2 {
		return nil, fmt.Errorf("%w: series spans less than one %s step", ErrInsufficientData, step)
	}
	return newSeries(times, prices, WithName(s.name)), nil
}

// Mean returns the arithmetic mean price.
func (s *Series) Mean() float64 {
	sum := 0.0
	for _, v := range s.prices {
		sum += v
	}
	return sum / float64(len(s.prices))
}

// Min returns the lowest price.
func (s *Series) Min() float64 {
	min := s.prices[0]
	for _, v := range s.prices[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the highest price.
func (s *Series) Max() float64 {
	max := s.prices[0]
	for _, v := range s.prices[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Diff returns the first difference of values, one element shorter.
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

func medianStep(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	deltas := make([]time.Duration, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas[i-1] = times[i].Sub(times[i-1])
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	n := len(deltas)
	if n%2 == 0 {
		return (deltas[n/2-1] + deltas[n/2]) / 2
	}
	return deltas[n/2]
}

func findGaps(times []time.Time, step time.Duration) []Gap {
	if step <= 0 {
		return nil
	}
	limit := time.Duration(float64(step) * gapFactor)

	var gaps []Gap
	for i := 1; i < len(times); i++ {
		delta := times[i].Sub(times[i-1])
		if delta > limit {
			gaps = append(gaps, Gap{
				From:    times[i-1],
				To:      times[i],
				Missing: int(math.Round(float64(delta)/float64(step))) - 1,
			})
		}
	}
	return gaps
}
