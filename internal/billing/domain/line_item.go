package billing

import (
	"strconv"

	"github.com/shopspring/decimal"

	tariff "tariff-billing/internal/tariff/domain"
)

// MetaEntry is one breakdown row of a line item: a month of a demand
// charge or a rate period of an energy charge.
type MetaEntry struct {
	Label  string  `json:"label"`
	Season string  `json:"season,omitempty"`
	KW     float64 `json:"kw,omitempty"`
	KWh    float64 `json:"kwh,omitempty"`
	KVA    float64 `json:"max_kva,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Amount float64 `json:"amount"`
}

// LineItem is the evaluated total of one tariff charge.
type LineItem struct {
	Name            string                 `json:"name"`
	Charge          string                 `json:"charge"`
	Kind            tariff.ChargeKind      `json:"kind"`
	RateBillingType tariff.RateBillingType `json:"rate_billing_type"`
	Total           float64                `json:"total"`
	Units           float64                `json:"units"`
	UnitsType       string                 `json:"units_type"`
	Rate            float64                `json:"rate"`
	RateLabel       string                 `json:"rate_label"`
	RateIsAverage   bool                   `json:"rate_is_average,omitempty"`
	BaseRate        *tariff.BaseRate       `json:"base_rate,omitempty"`
	Meta            []MetaEntry            `json:"meta,omitempty"`
}

// AsMap renders the item into a flat structure for generic consumers.
func (li LineItem) AsMap() map[string]any {
	out := map[string]any{
		"name":              li.Name,
		"charge":            li.Charge,
		"kind":              string(li.Kind),
		"rate_billing_type": li.RateBillingType.Label(),
		"total":             li.Total,
		"units":             li.Units,
		"units_type":        li.UnitsType,
		"rate":              li.RateLabel,
	}
	if li.BaseRate != nil {
		out["base_rate"] = map[string]any{
			"rate_billing_type": li.BaseRate.RateBillingType.Label(),
			"units":             li.BaseRate.Units,
			"unit_type":         li.BaseRate.UnitType,
		}
	}
	if len(li.Meta) > 0 {
		meta := make([]map[string]any, 0, len(li.Meta))
		for _, m := range li.Meta {
			entry := map[string]any{"label": m.Label, "amount": m.Amount}
			if m.Season != "" {
				entry["season"] = m.Season
			}
			if m.KW != 0 {
				entry["kw"] = m.KW
			}
			if m.KWh != 0 {
				entry["kwh"] = m.KWh
			}
			if m.KVA != 0 {
				entry["max_kva"] = m.KVA
			}
			if m.Rate != 0 {
				entry["rate"] = m.Rate
			}
			meta = append(meta, entry)
		}
		out["meta"] = meta
	}
	return out
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

func averageRateLabel(rate float64) string {
	return decimal.NewFromFloat(rate).Round(4).String() + " (avg)"
}
