package tariff

import "strings"

// Season is the month-based demand class of a tariff.
type Season string

const (
	SeasonHighDemand Season = "high_demand"
	SeasonLowDemand  Season = "low_demand"
)

// IsValid reports whether s is a known season.
func (s Season) IsValid() bool {
	return s == SeasonHighDemand || s == SeasonLowDemand
}

// Seasons lists all seasons in display order.
func Seasons() []Season { return []Season{SeasonHighDemand, SeasonLowDemand} }

// RatePeriod is the time-of-use class of a half-hour slot.
type RatePeriod string

const (
	PeriodPeak     RatePeriod = "peak"
	PeriodStandard RatePeriod = "standard"
	PeriodOffPeak  RatePeriod = "off_peak"
)

// IsValid reports whether p is a known rate period.
func (p RatePeriod) IsValid() bool {
	switch p {
	case PeriodPeak, PeriodStandard, PeriodOffPeak:
		return true
	default:
		return false
	}
}

// IsDemandBasis reports whether readings in this period count toward the
// maximum demand that demand and network access charges bill on.
func (p RatePeriod) IsDemandBasis() bool {
	return p == PeriodPeak || p == PeriodStandard
}

// RatePeriods lists the periods in the order itemised bills show them.
func RatePeriods() []RatePeriod { return []RatePeriod{PeriodOffPeak, PeriodPeak, PeriodStandard} }

// RateBillingType describes the unit semantics of a charge rate.
type RateBillingType string

const (
	BillingPerMonth          RateBillingType = "per_month"
	BillingPerYear           RateBillingType = "per_year"
	BillingPerMaxKVAPerMonth RateBillingType = "per_max_kva_per_month"
	BillingPerMaxKVAPerYear  RateBillingType = "per_max_kva_per_year"
	BillingPerKWh            RateBillingType = "per_kwh"
	BillingPerKVA            RateBillingType = "per_kva"
)

// IsValid reports whether t is a known billing type.
func (t RateBillingType) IsValid() bool {
	switch t {
	case BillingPerMonth, BillingPerYear, BillingPerMaxKVAPerMonth,
		BillingPerMaxKVAPerYear, BillingPerKWh, BillingPerKVA:
		return true
	default:
		return false
	}
}

// Label is the human form used on itemised bills ("per max kva per month").
func (t RateBillingType) Label() string {
	if t == "" {
		return "-"
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

// ChargeKind is the closed set of charge evaluators.
type ChargeKind string

const (
	KindFixed              ChargeKind = "fixed_charge"
	KindDemand             ChargeKind = "demand_charge"
	KindNetworkAccess      ChargeKind = "network_access_charge"
	KindEnergy             ChargeKind = "energy_charge"
	KindConsumptionDisplay ChargeKind = "internet_based_consumption_display"
)

var chargeNames = map[string]ChargeKind{
	string(KindFixed):              KindFixed,
	string(KindDemand):             KindDemand,
	string(KindNetworkAccess):      KindNetworkAccess,
	string(KindEnergy):             KindEnergy,
	string(KindConsumptionDisplay): KindConsumptionDisplay,
	"consumption_display":          KindConsumptionDisplay,
}

// ParseChargeKind resolves a declared charge name.
func ParseChargeKind(name string) (ChargeKind, bool) {
	kind, ok := chargeNames[strings.TrimSpace(name)]
	return kind, ok
}

// RateDepth is the number of keys needed to reach a rate for this kind:
// voltage; season+voltage; or season+voltage+period.
func (k ChargeKind) RateDepth() int {
	switch k {
	case KindDemand:
		return 2
	case KindEnergy:
		return 3
	default:
		return 1
	}
}

// DisplayName is the line item title for the kind.
func (k ChargeKind) DisplayName() string {
	switch k {
	case KindFixed:
		return "Fixed charge"
	case KindDemand:
		return "Demand charge"
	case KindNetworkAccess:
		return "Network access charge"
	case KindEnergy:
		return "Energy charge"
	case KindConsumptionDisplay:
		return "Internet based consumption display"
	default:
		return string(k)
	}
}
