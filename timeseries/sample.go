package timeseries

import (
	"encoding/json"
	"time"
)

// Sample is a timestamped value that may be missing. Aligned outputs (moving
// averages, rolling volatility, decomposition components) use Valid=false
// where the value is undefined instead of a numeric placeholder.
type Sample struct {
	Time  time.Time
	Value float64
	Valid bool
}

// Present returns a valid sample.
func Present(t time.Time, v float64) Sample {
	return Sample{Time: t, Value: v, Valid: true}
}

// Missing returns a sample with no value.
func Missing(t time.Time) Sample {
	return Sample{Time: t}
}

type sampleWire struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value *float64  `json:"value" yaml:"value"`
}

func (s Sample) wire() sampleWire {
	w := sampleWire{Time: s.Time}
	if s.Valid {
		v := s.Value
		w.Value = &v
	}
	return w
}

// MarshalJSON encodes a missing value as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// MarshalYAML encodes a missing value as null.
func (s Sample) MarshalYAML() (interface{}, error) {
	return s.wire(), nil
}

// ValidValues returns the values of the valid samples, in order.
func ValidValues(samples []Sample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Valid {
			out = append(out, s.Value)
		}
	}
	return out
}

// CountValid returns how many samples carry a value.
func CountValid(samples []Sample) int {
	n := 0
	for _, s := range samples {
		if s.Valid {
			n++
		}
	}
	return n
}
