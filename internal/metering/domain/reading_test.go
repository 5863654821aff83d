package metering

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewSeriesRejectsInvalidReadings(t *testing.T) {
	at := time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		readings []MeterReading
		field    string
	}{
		{"negative kw", []MeterReading{{Timestamp: at, KW: -1}}, "kw"},
		{"nan kva", []MeterReading{{Timestamp: at, KVA: math.NaN()}}, "kva"},
		{"missing timestamp", []MeterReading{{KW: 1}}, "timestamp"},
		{"duplicate", []MeterReading{{Timestamp: at, KW: 1}, {Timestamp: at, KW: 2}}, "timestamp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSeries(DefaultInterval, tc.readings)
			if !errors.Is(err, ErrInvalidReading) {
				t.Fatalf("expected invalid reading, got %v", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, vErr)
			}
		})
	}
}

func TestNewSeriesIntervalAndEmpty(t *testing.T) {
	if _, err := NewSeries(0, []MeterReading{{Timestamp: time.Now(), KW: 1}}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected invalid interval, got %v", err)
	}
	if _, err := NewSeries(DefaultInterval, nil); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected empty series, got %v", err)
	}
}

func TestSeriesIsDetachedFromInput(t *testing.T) {
	start := time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC)
	readings := []MeterReading{
		{Timestamp: start.Add(30 * time.Minute), KW: 20, KVA: 21},
		{Timestamp: start, KW: 50, KVA: 55},
	}
	series, err := NewSeries(DefaultInterval, readings)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	readings[0].KW = 999
	if series.At(0).KW != 20 {
		t.Fatalf("series aliases input slice")
	}
	out := series.Readings()
	out[1].KW = 999
	if series.At(1).KW != 50 {
		t.Fatalf("readings copy aliases series")
	}

	first, last := series.Span()
	if !first.Equal(start) || !last.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("unexpected span %s - %s", first, last)
	}
	if series.IntervalHours() != 0.5 {
		t.Fatalf("expected 0.5h interval, got %v", series.IntervalHours())
	}
	if got := KWToKWh(50, series.Interval()); got != 25 {
		t.Fatalf("expected 25 kWh, got %v", got)
	}
}
