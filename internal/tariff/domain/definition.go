package tariff

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// BaseRate is auxiliary unit metadata attached to some charges, e.g. a
// network access charge quoted per month for a 25 kVA minimum.
type BaseRate struct {
	RateBillingType RateBillingType `json:"rate_billing_type,omitempty"`
	Units           float64         `json:"units,omitempty"`
	UnitType        string          `json:"unit_type,omitempty"`
}

// IsZero reports whether no base rate metadata is present.
func (b BaseRate) IsZero() bool { return b == BaseRate{} }

// ChargeSpec is one charge line of a tariff.
type ChargeSpec struct {
	Name            string
	Kind            ChargeKind
	RateBillingType RateBillingType
	Rates           RateTree
	BaseRate        BaseRate
}

// NewChargeSpec resolves the evaluator kind for name and checks the rate
// tree has the shape that kind looks rates up by.
func NewChargeSpec(name string, billingType RateBillingType, rates RateTree, base BaseRate) (ChargeSpec, error) {
	kind, ok := ParseChargeKind(name)
	if !ok {
		return ChargeSpec{}, configErr("charges", "unknown charge %q", name)
	}
	spec := ChargeSpec{
		Name:            name,
		Kind:            kind,
		RateBillingType: billingType,
		Rates:           rates,
		BaseRate:        base,
	}
	if err := spec.Validate(); err != nil {
		return ChargeSpec{}, err
	}
	return spec, nil
}

// Validate checks the charge against the shape its kind requires.
func (c ChargeSpec) Validate() error {
	field := fmt.Sprintf("charges.%s", c.Name)
	if _, ok := ParseChargeKind(string(c.Kind)); !ok {
		return configErr(field, "unknown charge kind %q", c.Kind)
	}
	if c.RateBillingType == "" {
		return configErr(field+".rate_billing_type", "required")
	}
	if !c.RateBillingType.IsValid() {
		return configErr(field+".rate_billing_type", "unknown billing type %q", c.RateBillingType)
	}
	if depth := c.Rates.Depth(); depth != c.Kind.RateDepth() {
		return configErr(field+".types", "expected %d key levels, got %d", c.Kind.RateDepth(), depth)
	}
	if c.Kind == KindDemand || c.Kind == KindEnergy {
		for _, key := range c.Rates.Keys() {
			if !Season(key).IsValid() {
				return configErr(field+".types", "unknown season %q", key)
			}
		}
	}
	if c.Kind == KindEnergy {
		for _, season := range c.Rates.Keys() {
			byVoltage, _ := c.Rates.Child(season)
			for _, voltage := range byVoltage.Keys() {
				byPeriod, _ := byVoltage.Child(voltage)
				for _, key := range byPeriod.Keys() {
					if !RatePeriod(key).IsValid() {
						return configErr(fmt.Sprintf("%s.types.%s.%s", field, season, voltage), "unknown rate period %q", key)
					}
				}
			}
		}
	}
	return nil
}

// Rate looks up a rate and tags a miss with the charge name.
func (c ChargeSpec) Rate(path ...string) (float64, error) {
	v, err := c.Rates.Lookup(path...)
	if err != nil {
		var notFound *RateNotFoundError
		if errors.As(err, &notFound) {
			notFound.Charge = c.Name
		}
		return 0, err
	}
	return v, nil
}

// VoltageTypes returns the sorted voltage classes the charge has rates for.
func (c ChargeSpec) VoltageTypes() []string {
	if c.Kind.RateDepth() == 1 {
		return c.Rates.Keys()
	}
	seen := make(map[string]struct{})
	for _, season := range c.Rates.Keys() {
		bySeason, _ := c.Rates.Child(season)
		for _, voltage := range bySeason.Keys() {
			seen[voltage] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for voltage := range seen {
		out = append(out, voltage)
	}
	sort.Strings(out)
	return out
}

// Meta is descriptive tariff metadata.
type Meta struct {
	Description      string   `json:"description"`
	DescriptionExtra string   `json:"description_extra"`
	Connections      []string `json:"connections"`
	CapacityMax      string   `json:"capacity_max"`
}

// Definition is a versioned utility rate plan. It is read-only once loaded.
type Definition struct {
	Region           string
	Code             string
	Name             string
	DisplayName      string
	Country          string
	Currency         string
	CurrencySymbol   string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Expires          time.Time
	HighDemandMonths []time.Month
	VATRate          float64
	Meta             Meta
	TimeOfUse        TimeOfUseTable
	Calendar         CalendarRules
	Charges          []ChargeSpec
}

// Validate checks the definition invariants and tags errors with the code.
func (d *Definition) Validate() error {
	if d == nil {
		return &ConfigurationError{Reason: "nil definition"}
	}
	if err := d.validate(); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Tariff == "" {
			cfgErr.Tariff = d.Code
		}
		return err
	}
	return nil
}

func (d *Definition) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"region", d.Region},
		{"code", d.Code},
		{"name", d.Name},
		{"display_name", d.DisplayName},
		{"country", d.Country},
		{"currency", d.Currency},
	}
	for _, r := range required {
		if r.value == "" {
			return configErr(r.field, "required")
		}
	}
	if d.PeriodStart.IsZero() {
		return configErr("period_start", "required")
	}
	if d.PeriodEnd.IsZero() {
		return configErr("period_end", "required")
	}
	if d.Expires.IsZero() {
		return configErr("expires", "required")
	}
	if dateOf(d.PeriodEnd).before(dateOf(d.PeriodStart)) {
		return configErr("period_end", "before period_start")
	}
	if len(d.HighDemandMonths) == 0 {
		return configErr("high_demand_months", "must not be empty")
	}
	for _, m := range d.HighDemandMonths {
		if m < time.January || m > time.December {
			return configErr("high_demand_months", "month %d out of range", int(m))
		}
	}
	if d.VATRate < 0 || d.VATRate >= 1 {
		return configErr("vat_rate", "must be a fraction in [0, 1), got %v", d.VATRate)
	}
	if len(d.Charges) == 0 {
		return configErr("charges", "must not be empty")
	}
	for _, c := range d.Charges {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsHighDemand reports whether month belongs to the high demand season.
func (d *Definition) IsHighDemand(month time.Month) bool {
	for _, m := range d.HighDemandMonths {
		if m == month {
			return true
		}
	}
	return false
}

// SeasonOf returns the season of a calendar month.
func (d *Definition) SeasonOf(month time.Month) Season {
	if d.IsHighDemand(month) {
		return SeasonHighDemand
	}
	return SeasonLowDemand
}

// Covers reports whether the calendar date of t lies inside the validity
// window, both ends inclusive.
func (d *Definition) Covers(t time.Time) bool {
	day := dateOf(t)
	return !day.before(dateOf(d.PeriodStart)) && !dateOf(d.PeriodEnd).before(day)
}

// Symbol returns the currency symbol, falling back to the currency name.
func (d *Definition) Symbol() string {
	if d.CurrencySymbol != "" {
		return d.CurrencySymbol
	}
	return d.Currency
}
