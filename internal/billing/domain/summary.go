package billing

import (
	"github.com/shopspring/decimal"

	tariff "tariff-billing/internal/tariff/domain"
)

// BillSummary totals the line items of a bill.
type BillSummary struct {
	Total        float64 `json:"total"`
	VATRate      float64 `json:"vat_rate"`
	VATRateHuman string  `json:"vat_rate_human"`
	VATAmount    float64 `json:"vat_amount"`
	TotalInclVAT float64 `json:"total_incl_vat"`
	Currency     string  `json:"currency"`
	Symbol       string  `json:"symbol"`
}

// Summarize sums item totals and applies the tariff VAT rate. It has no
// side effects and returns the same summary for the same inputs.
func Summarize(items []LineItem, def *tariff.Definition) BillSummary {
	var total float64
	for _, item := range items {
		total += item.Total
	}
	out := BillSummary{Total: total}
	if def == nil {
		out.VATRateHuman = vatHuman(0)
		out.TotalInclVAT = total
		return out
	}
	out.VATRate = def.VATRate
	out.VATRateHuman = vatHuman(def.VATRate)
	out.VATAmount = total * def.VATRate
	out.TotalInclVAT = total + out.VATAmount
	out.Currency = def.Currency
	out.Symbol = def.Symbol()
	return out
}

// AsMap renders the summary into a flat structure for generic consumers.
func (s BillSummary) AsMap() map[string]any {
	return map[string]any{
		"total":          s.Total,
		"vat_rate":       s.VATRate,
		"vat_rate_human": s.VATRateHuman,
		"vat_amount":     s.VATAmount,
		"total_incl_vat": s.TotalInclVAT,
		"currency":       s.Currency,
		"symbol":         s.Symbol,
	}
}

func vatHuman(rate float64) string {
	return decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(100)).String() + " %"
}
