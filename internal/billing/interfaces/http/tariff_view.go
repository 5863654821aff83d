package http

import (
	tariff "tariff-billing/internal/tariff/domain"
)

type chargeView struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	RateBillingType string   `json:"rate_billing_type"`
	VoltageTypes    []string `json:"voltage_types"`
}

type tariffView struct {
	Code             string       `json:"code"`
	Region           string       `json:"region"`
	Name             string       `json:"name"`
	DisplayName      string       `json:"display_name"`
	Country          string       `json:"country"`
	Currency         string       `json:"currency"`
	CurrencySymbol   string       `json:"currency_symbol"`
	PeriodStart      string       `json:"period_start"`
	PeriodEnd        string       `json:"period_end"`
	Expires          string       `json:"expires"`
	HighDemandMonths []int        `json:"high_demand_months"`
	VATRate          float64      `json:"vat_rate"`
	Meta             tariff.Meta  `json:"meta"`
	Charges          []chargeView `json:"charges"`
}

func viewOf(def *tariff.Definition) tariffView {
	months := make([]int, len(def.HighDemandMonths))
	for i, m := range def.HighDemandMonths {
		months[i] = int(m)
	}
	charges := make([]chargeView, len(def.Charges))
	for i, c := range def.Charges {
		charges[i] = chargeView{
			Name:            c.Name,
			Kind:            string(c.Kind),
			RateBillingType: string(c.RateBillingType),
			VoltageTypes:    c.VoltageTypes(),
		}
	}
	return tariffView{
		Code:             def.Code,
		Region:           def.Region,
		Name:             def.Name,
		DisplayName:      def.DisplayName,
		Country:          def.Country,
		Currency:         def.Currency,
		CurrencySymbol:   def.Symbol(),
		PeriodStart:      def.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        def.PeriodEnd.Format("2006-01-02"),
		Expires:          def.Expires.Format("2006-01-02"),
		HighDemandMonths: months,
		VATRate:          def.VATRate,
		Meta:             def.Meta,
		Charges:          charges,
	}
}
