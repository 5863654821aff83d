package billing

import (
	"errors"
	"fmt"
	"time"

	metering "tariff-billing/internal/metering/domain"
	tariff "tariff-billing/internal/tariff/domain"
)

// BillingMonth is a calendar month of a particular year.
type BillingMonth struct {
	Year  int
	Month time.Month
}

// MonthOf returns the billing month containing t.
func MonthOf(t time.Time) BillingMonth {
	return BillingMonth{Year: t.Year(), Month: t.Month()}
}

// IsZero reports whether the month is unset.
func (m BillingMonth) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Before orders billing months chronologically.
func (m BillingMonth) Before(o BillingMonth) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// String formats the month as YYYY-MM.
func (m BillingMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ClassifiedReading is a meter reading with its billing classification and
// the energy it represents over one interval.
type ClassifiedReading struct {
	metering.MeterReading
	Month        time.Month
	BillingMonth BillingMonth
	Season       tariff.Season
	RatePeriod   tariff.RatePeriod
	KWh          float64
}

// Classify classifies every reading of the series. The first reading that
// cannot be classified aborts the run; a reading outside the tariff validity
// window is reported as a ValidationError.
func Classify(series metering.Series, classifier *tariff.Classifier) ([]ClassifiedReading, error) {
	if classifier == nil {
		return nil, ErrNilTariff
	}
	out := make([]ClassifiedReading, 0, series.Len())
	interval := series.Interval()
	for i := 0; i < series.Len(); i++ {
		r := series.At(i)
		class, err := classifier.Classify(r.Timestamp)
		if errors.Is(err, tariff.ErrOutsideValidity) {
			return nil, &metering.ValidationError{Index: i, Field: "timestamp", Reason: err.Error()}
		}
		if err != nil {
			return nil, fmt.Errorf("billing: classify reading %d at %s: %w", i, r.Timestamp.Format(time.RFC3339), err)
		}
		out = append(out, ClassifiedReading{
			MeterReading: r,
			Month:        class.Month,
			BillingMonth: MonthOf(r.Timestamp),
			Season:       class.Season,
			RatePeriod:   class.RatePeriod,
			KWh:          metering.KWToKWh(r.KW, interval),
		})
	}
	return out, nil
}
