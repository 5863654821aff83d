package tariff

import (
	"errors"
	"fmt"
	"time"
)

// Classification is the billing class of one instant.
type Classification struct {
	Month      time.Month
	Season     Season
	RatePeriod RatePeriod
}

// Classifier resolves season and time-of-use period against one tariff.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	tariff   *Definition
	calendar Calendar
}

// NewClassifier resolves the tariff's calendar for its validity window.
func NewClassifier(def *Definition) (*Classifier, error) {
	if def == nil {
		return nil, errors.New("tariff: nil definition")
	}
	return &Classifier{
		tariff:   def,
		calendar: NewCalendar(def.Calendar, def.PeriodStart, def.PeriodEnd),
	}, nil
}

// Calendar returns the resolved calendar.
func (c *Classifier) Calendar() Calendar { return c.calendar }

// Classify returns month, season and rate period for t. Holidays and
// off-peak weekdays are off-peak at every hour; other days use the
// half-hourly table of the season. Instants outside the validity window
// fail with ErrOutsideValidity.
func (c *Classifier) Classify(t time.Time) (Classification, error) {
	if !c.tariff.Covers(t) {
		return Classification{}, fmt.Errorf("%w: %s not in %s to %s of tariff %s", ErrOutsideValidity,
			t.Format(time.RFC3339), c.tariff.PeriodStart.Format("2006-01-02"),
			c.tariff.PeriodEnd.Format("2006-01-02"), c.tariff.Code)
	}
	month := t.Month()
	out := Classification{
		Month:  month,
		Season: c.tariff.SeasonOf(month),
	}
	if c.calendar.IsOffPeakDay(t) {
		out.RatePeriod = PeriodOffPeak
		return out, nil
	}
	period, err := c.tariff.TimeOfUse.Lookup(out.Season, t)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Tariff == "" {
			cfgErr.Tariff = c.tariff.Code
		}
		return Classification{}, err
	}
	out.RatePeriod = period
	return out, nil
}
