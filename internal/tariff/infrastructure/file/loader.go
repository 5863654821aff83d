package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	tariff "tariff-billing/internal/tariff/domain"
)

// Format is the encoding of a tariff definition document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const dateLayout = "2006-01-02"

// FormatOf derives the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

type tariffFile struct {
	Region           string              `yaml:"region" json:"region"`
	Code             string              `yaml:"code" json:"code"`
	Name             string              `yaml:"name" json:"name"`
	DisplayName      string              `yaml:"display_name" json:"display_name"`
	Country          string              `yaml:"country" json:"country"`
	Currency         string              `yaml:"currency" json:"currency"`
	CurrencySymbol   string              `yaml:"currency_symbol" json:"currency_symbol"`
	PeriodStart      string              `yaml:"period_start" json:"period_start"`
	PeriodEnd        string              `yaml:"period_end" json:"period_end"`
	Expires          string              `yaml:"expires" json:"expires"`
	HighDemandMonths []int               `yaml:"high_demand_months" json:"high_demand_months"`
	VATRate          float64             `yaml:"vat_rate" json:"vat_rate"`
	Meta             *metaFile           `yaml:"meta" json:"meta"`
	Calendar         calendarFile        `yaml:"calendar" json:"calendar"`
	TimeOfUse        map[string]hourFile `yaml:"time_of_use" json:"time_of_use"`
	Charges          []chargeFile        `yaml:"charges" json:"charges"`

	// TariffMap is accepted and ignored; older exports carry it empty.
	TariffMap []any `yaml:"tariff_map" json:"tariff_map"`
}

type hourFile map[string][]string

type metaFile struct {
	Description      string   `yaml:"description" json:"description"`
	DescriptionExtra string   `yaml:"description_extra" json:"description_extra"`
	Connections      []string `yaml:"connections" json:"connections"`
	CapacityMax      string   `yaml:"capacity_max" json:"capacity_max"`
}

type calendarFile struct {
	Holidays              []string `yaml:"holidays" json:"holidays"`
	OffPeakWeekdays       []string `yaml:"off_peak_weekdays" json:"off_peak_weekdays"`
	ObserveSundayHolidays bool     `yaml:"observe_sunday_holidays" json:"observe_sunday_holidays"`
}

type chargeFile struct {
	Name            string        `yaml:"name" json:"name"`
	RateBillingType string        `yaml:"rate_billing_type" json:"rate_billing_type"`
	Types           any           `yaml:"types" json:"types"`
	BaseRate        *baseRateFile `yaml:"base_rate" json:"base_rate"`
}

type baseRateFile struct {
	RateBillingType string  `yaml:"rate_billing_type" json:"rate_billing_type"`
	Units           float64 `yaml:"units" json:"units"`
	UnitType        string  `yaml:"unit_type" json:"unit_type"`
}

// Parse decodes and validates one tariff definition document.
func Parse(data []byte, format Format) (*tariff.Definition, error) {
	var doc tariffFile
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, &tariff.ConfigurationError{Reason: "decode yaml: " + err.Error()}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, &tariff.ConfigurationError{Reason: "decode json: " + err.Error()}
		}
	default:
		return nil, &tariff.ConfigurationError{Reason: fmt.Sprintf("unsupported format %q", format)}
	}

	def, err := doc.toDomain()
	if err != nil {
		var cfgErr *tariff.ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Tariff == "" {
			cfgErr.Tariff = doc.Code
		}
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile reads a tariff definition from disk.
func LoadFile(path string) (*tariff.Definition, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("file: %s: unsupported extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", path, err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("file: %s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every YAML and JSON definition in dir, sorted by file name.
// Two files declaring the same code are rejected.
func LoadDir(dir string) ([]*tariff.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("file: read dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatOf(entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	defs := make([]*tariff.Definition, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.Code]; ok {
			return nil, &tariff.ConfigurationError{Tariff: def.Code, Field: "code", Reason: fmt.Sprintf("declared by both %s and %s", prev, name)}
		}
		seen[def.Code] = name
		defs = append(defs, def)
	}
	return defs, nil
}

func (f tariffFile) toDomain() (*tariff.Definition, error) {
	required := []struct {
		field string
		value string
	}{
		{"region", f.Region},
		{"code", f.Code},
		{"name", f.Name},
		{"display_name", f.DisplayName},
		{"country", f.Country},
		{"currency", f.Currency},
		{"period_start", f.PeriodStart},
		{"period_end", f.PeriodEnd},
		{"expires", f.Expires},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &tariff.ConfigurationError{Field: r.field, Reason: "required"}
		}
	}
	if f.Meta == nil {
		return nil, &tariff.ConfigurationError{Field: "meta", Reason: "required"}
	}
	if len(f.Charges) == 0 {
		return nil, &tariff.ConfigurationError{Field: "charges", Reason: "required"}
	}

	def := &tariff.Definition{
		Region:         f.Region,
		Code:           f.Code,
		Name:           f.Name,
		DisplayName:    f.DisplayName,
		Country:        f.Country,
		Currency:       f.Currency,
		CurrencySymbol: f.CurrencySymbol,
		VATRate:        f.VATRate,
		Meta: tariff.Meta{
			Description:      f.Meta.Description,
			DescriptionExtra: f.Meta.DescriptionExtra,
			Connections:      f.Meta.Connections,
			CapacityMax:      f.Meta.CapacityMax,
		},
	}

	var err error
	if def.PeriodStart, err = parseDate("period_start", f.PeriodStart); err != nil {
		return nil, err
	}
	if def.PeriodEnd, err = parseDate("period_end", f.PeriodEnd); err != nil {
		return nil, err
	}
	if def.Expires, err = parseDate("expires", f.Expires); err != nil {
		return nil, err
	}
	for _, m := range f.HighDemandMonths {
		def.HighDemandMonths = append(def.HighDemandMonths, time.Month(m))
	}
	if def.Calendar, err = f.Calendar.toDomain(); err != nil {
		return nil, err
	}
	if def.TimeOfUse, err = timeOfUse(f.TimeOfUse); err != nil {
		return nil, err
	}
	for i, c := range f.Charges {
		spec, err := c.toDomain(i)
		if err != nil {
			return nil, err
		}
		def.Charges = append(def.Charges, spec)
	}
	return def, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &tariff.ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw)}
	}
	return t, nil
}

func (c calendarFile) toDomain() (tariff.CalendarRules, error) {
	rules := tariff.CalendarRules{ObserveSundayHolidays: c.ObserveSundayHolidays}
	for i, raw := range c.Holidays {
		h, err := tariff.ParseHoliday(raw)
		if err != nil {
			return tariff.CalendarRules{}, &tariff.ConfigurationError{Field: fmt.Sprintf("calendar.holidays[%d]", i), Reason: err.Error()}
		}
		rules.Holidays = append(rules.Holidays, h)
	}
	for i, raw := range c.OffPeakWeekdays {
		d, err := tariff.ParseWeekday(raw)
		if err != nil {
			return tariff.CalendarRules{}, &tariff.ConfigurationError{Field: fmt.Sprintf("calendar.off_peak_weekdays[%d]", i), Reason: err.Error()}
		}
		rules.OffPeakWeekdays = append(rules.OffPeakWeekdays, d)
	}
	return rules, nil
}

func timeOfUse(raw map[string]hourFile) (tariff.TimeOfUseTable, error) {
	table := make(map[tariff.Season]map[int]tariff.HourSlots, len(raw))
	for seasonName, hours := range raw {
		season := tariff.Season(seasonName)
		if !season.IsValid() {
			return tariff.TimeOfUseTable{}, &tariff.ConfigurationError{Field: "time_of_use", Reason: fmt.Sprintf("unknown season %q", seasonName)}
		}
		byHour := make(map[int]tariff.HourSlots, len(hours))
		for hourKey, periods := range hours {
			field := fmt.Sprintf("time_of_use.%s.%s", seasonName, hourKey)
			hour, err := strconv.Atoi(strings.TrimSpace(hourKey))
			if err != nil {
				return tariff.TimeOfUseTable{}, &tariff.ConfigurationError{Field: field, Reason: "hour must be an integer"}
			}
			var slots tariff.HourSlots
			switch len(periods) {
			case 1:
				slots = tariff.HourSlots{tariff.RatePeriod(periods[0]), tariff.RatePeriod(periods[0])}
			case tariff.SlotsPerHour:
				slots = tariff.HourSlots{tariff.RatePeriod(periods[0]), tariff.RatePeriod(periods[1])}
			default:
				return tariff.TimeOfUseTable{}, &tariff.ConfigurationError{Field: field, Reason: fmt.Sprintf("expected 1 or %d periods, got %d", tariff.SlotsPerHour, len(periods))}
			}
			byHour[hour] = slots
		}
		table[season] = byHour
	}
	return tariff.NewTimeOfUseTable(table)
}

func (c chargeFile) toDomain(index int) (tariff.ChargeSpec, error) {
	field := fmt.Sprintf("charges[%d]", index)
	if c.Name == "" {
		return tariff.ChargeSpec{}, &tariff.ConfigurationError{Field: field + ".name", Reason: "required"}
	}
	if c.RateBillingType == "" {
		return tariff.ChargeSpec{}, &tariff.ConfigurationError{Field: field + ".rate_billing_type", Reason: "required"}
	}
	if c.Types == nil {
		return tariff.ChargeSpec{}, &tariff.ConfigurationError{Field: field + ".types", Reason: "required"}
	}
	rates, err := tariff.RateTreeFromValue(c.Types)
	if err != nil {
		return tariff.ChargeSpec{}, &tariff.ConfigurationError{Field: field + ".types", Reason: err.Error()}
	}
	var base tariff.BaseRate
	if c.BaseRate != nil {
		base = tariff.BaseRate{
			RateBillingType: tariff.RateBillingType(c.BaseRate.RateBillingType),
			Units:           c.BaseRate.Units,
			UnitType:        c.BaseRate.UnitType,
		}
		if base.RateBillingType != "" && !base.RateBillingType.IsValid() {
			return tariff.ChargeSpec{}, &tariff.ConfigurationError{Field: field + ".base_rate.rate_billing_type", Reason: fmt.Sprintf("unknown billing type %q", base.RateBillingType)}
		}
	}
	return tariff.NewChargeSpec(c.Name, tariff.RateBillingType(c.RateBillingType), rates, base)
}
