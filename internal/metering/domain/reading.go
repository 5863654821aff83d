package metering

import (
	"math"
	"slices"
	"strconv"
	"time"
)

// DefaultInterval is the half-hourly resolution most interval meters export.
const DefaultInterval = 30 * time.Minute

// MeterReading is one interval sample, already unit-adjusted.
type MeterReading struct {
	Timestamp time.Time `json:"timestamp"`
	KW        float64   `json:"kw"`
	KVAR      float64   `json:"kvar"`
	KVA       float64   `json:"kva"`
}

// Validate checks a single reading.
func (r MeterReading) Validate(index int) error {
	if r.Timestamp.IsZero() {
		return &ValidationError{Index: index, Field: "timestamp", Reason: "missing timestamp"}
	}
	if err := checkQuantity(index, "kw", r.KW); err != nil {
		return err
	}
	if err := checkQuantity(index, "kvar", r.KVAR); err != nil {
		return err
	}
	return checkQuantity(index, "kva", r.KVA)
}

func checkQuantity(index int, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Index: index, Field: field, Reason: "not a finite number"}
	}
	if v < 0 {
		return &ValidationError{Index: index, Field: field, Reason: "negative value"}
	}
	return nil
}

// Series is a set of readings sampled at one uniform interval.
type Series struct {
	interval time.Duration
	readings []MeterReading
}

// NewSeries validates the readings and returns a detached series.
// The first invalid reading aborts construction; duplicate timestamps are
// rejected because they would double count energy.
func NewSeries(interval time.Duration, readings []MeterReading) (Series, error) {
	if interval <= 0 {
		return Series{}, ErrInvalidInterval
	}
	if len(readings) == 0 {
		return Series{}, ErrEmptySeries
	}
	seen := make(map[int64]int, len(readings))
	for i, r := range readings {
		if err := r.Validate(i); err != nil {
			return Series{}, err
		}
		key := r.Timestamp.UnixNano()
		if first, ok := seen[key]; ok {
			return Series{}, &ValidationError{
				Index:  i,
				Field:  "timestamp",
				Reason: "duplicate of reading " + strconv.Itoa(first),
			}
		}
		seen[key] = i
	}
	return Series{interval: interval, readings: slices.Clone(readings)}, nil
}

// Interval returns the sampling interval.
func (s Series) Interval() time.Duration { return s.interval }

// IntervalHours returns the interval length in hours, used for kW to kWh.
func (s Series) IntervalHours() float64 { return s.interval.Hours() }

// Len returns the number of readings.
func (s Series) Len() int { return len(s.readings) }

// Readings returns a copy of the readings.
func (s Series) Readings() []MeterReading { return slices.Clone(s.readings) }

// At returns the i-th reading.
func (s Series) At(i int) MeterReading { return s.readings[i] }

// Span returns the first and last timestamps of the series.
func (s Series) Span() (time.Time, time.Time) {
	if len(s.readings) == 0 {
		return time.Time{}, time.Time{}
	}
	first, last := s.readings[0].Timestamp, s.readings[0].Timestamp
	for _, r := range s.readings[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return first, last
}

// KWToKWh converts a demand sample to the energy drawn over one interval.
func KWToKWh(kw float64, interval time.Duration) float64 {
	return kw * interval.Hours()
}
