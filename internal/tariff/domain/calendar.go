package tariff

import (
	"fmt"
	"strings"
	"time"
)

// Holiday is an off-peak day rule. Year zero means the holiday recurs on
// the same month and day every year.
type Holiday struct {
	Year  int
	Month time.Month
	Day   int
	Name  string
}

// IsAnnual reports whether the holiday recurs every year.
func (h Holiday) IsAnnual() bool { return h.Year == 0 }

// ParseHoliday accepts "MM-DD" for annual and "YYYY-MM-DD" for one-off dates.
func ParseHoliday(raw string) (Holiday, error) {
	raw = strings.TrimSpace(raw)
	switch len(raw) {
	case len("01-02"):
		t, err := time.Parse("01-02", raw)
		if err != nil {
			return Holiday{}, fmt.Errorf("invalid annual holiday %q", raw)
		}
		return Holiday{Month: t.Month(), Day: t.Day()}, nil
	case len("2006-01-02"):
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Holiday{}, fmt.Errorf("invalid holiday date %q", raw)
		}
		return Holiday{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	default:
		return Holiday{}, fmt.Errorf("invalid holiday %q", raw)
	}
}

// CalendarRules is the regional calendar configuration of a tariff.
type CalendarRules struct {
	Holidays []Holiday
	// OffPeakWeekdays are billed entirely off-peak. Empty means Sunday only.
	OffPeakWeekdays []time.Weekday
	// ObserveSundayHolidays makes the Monday after a Sunday holiday off-peak too.
	ObserveSundayHolidays bool
}

// ParseWeekday resolves an English weekday name.
func ParseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", raw)
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

func (d civilDate) before(o civilDate) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}

// Calendar answers "is this instant billed off-peak all day" for a tariff.
// Holiday dates are resolved once, for the years the validity window covers.
type Calendar struct {
	holidays map[civilDate]string
	offPeak  [7]bool
}

// NewCalendar resolves rules for every year between from and to inclusive.
func NewCalendar(rules CalendarRules, from, to time.Time) Calendar {
	cal := Calendar{holidays: make(map[civilDate]string)}
	if len(rules.OffPeakWeekdays) == 0 {
		cal.offPeak[time.Sunday] = true
	}
	for _, d := range rules.OffPeakWeekdays {
		cal.offPeak[d] = true
	}

	firstYear, lastYear := from.Year(), to.Year()
	if to.IsZero() || lastYear < firstYear {
		lastYear = firstYear
	}
	for _, h := range rules.Holidays {
		if !h.IsAnnual() {
			cal.add(time.Date(h.Year, h.Month, h.Day, 0, 0, 0, 0, time.UTC), h.Name, rules.ObserveSundayHolidays)
			continue
		}
		for year := firstYear; year <= lastYear; year++ {
			day := time.Date(year, h.Month, h.Day, 0, 0, 0, 0, time.UTC)
			// An annual 02-29 only exists in leap years.
			if day.Day() != h.Day {
				continue
			}
			cal.add(day, h.Name, rules.ObserveSundayHolidays)
		}
	}
	return cal
}

func (c *Calendar) add(day time.Time, name string, observeSunday bool) {
	c.holidays[dateOf(day)] = name
	if observeSunday && day.Weekday() == time.Sunday {
		observed := day.AddDate(0, 0, 1)
		if _, exists := c.holidays[dateOf(observed)]; !exists {
			c.holidays[dateOf(observed)] = name
		}
	}
}

// IsHoliday reports whether t falls on a resolved holiday date.
func (c Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[dateOf(t)]
	return ok
}

// IsOffPeakDay reports whether the whole day of t is billed off-peak.
func (c Calendar) IsOffPeakDay(t time.Time) bool {
	return c.offPeak[t.Weekday()] || c.IsHoliday(t)
}

// HolidayCount returns the number of resolved holiday dates.
func (c Calendar) HolidayCount() int { return len(c.holidays) }
