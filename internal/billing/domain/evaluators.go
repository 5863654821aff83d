package billing

import (
	"fmt"

	tariff "tariff-billing/internal/tariff/domain"
)

// Evaluator computes one line item from a charge, the aggregate view and
// the requested voltage class.
type Evaluator func(spec tariff.ChargeSpec, view *AggregateView, voltage string) (LineItem, error)

var evaluators = map[tariff.ChargeKind]Evaluator{
	tariff.KindFixed:              evaluateFixed,
	tariff.KindConsumptionDisplay: evaluateFixed,
	tariff.KindDemand:             evaluateDemand,
	tariff.KindNetworkAccess:      evaluateNetworkAccess,
	tariff.KindEnergy:             evaluateEnergy,
}

// EvaluatorFor returns the evaluator registered for kind.
func EvaluatorFor(kind tariff.ChargeKind) (Evaluator, error) {
	ev, ok := evaluators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharge, kind)
	}
	return ev, nil
}

func newLineItem(spec tariff.ChargeSpec) LineItem {
	item := LineItem{
		Name:            spec.Kind.DisplayName(),
		Charge:          spec.Name,
		Kind:            spec.Kind,
		RateBillingType: spec.RateBillingType,
	}
	if !spec.BaseRate.IsZero() {
		base := spec.BaseRate
		item.BaseRate = &base
	}
	return item
}

// evaluateFixed charges the voltage rate once per distinct billing month.
func evaluateFixed(spec tariff.ChargeSpec, view *AggregateView, voltage string) (LineItem, error) {
	rate, err := spec.Rate(voltage)
	if err != nil {
		return LineItem{}, err
	}
	months := view.DistinctMonths()
	item := newLineItem(spec)
	item.Units = float64(len(months))
	item.UnitsType = "months"
	item.Rate = rate
	item.RateLabel = formatRate(rate)
	item.Total = rate * item.Units
	for _, m := range months {
		season, _ := view.SeasonOf(m)
		item.Meta = append(item.Meta, MetaEntry{Label: m.String(), Season: string(season), Rate: rate, Amount: rate})
	}
	return item, nil
}

// evaluateDemand charges each month's peak or standard maximum kVA at the
// rate of that month's season.
func evaluateDemand(spec tariff.ChargeSpec, view *AggregateView, voltage string) (LineItem, error) {
	months := view.DistinctMonths()
	if len(months) == 0 {
		return LineItem{}, &InsufficientDataError{Charge: spec.Name}
	}
	item := newLineItem(spec)
	item.UnitsType = "kVA"
	var firstRate float64
	uniform := true
	for i, m := range months {
		maxKVA, err := view.MaxKVAForMonth(m)
		if err != nil {
			return LineItem{}, &InsufficientDataError{Charge: spec.Name, Month: m}
		}
		season, _ := view.SeasonOf(m)
		rate, err := spec.Rate(string(season), voltage)
		if err != nil {
			return LineItem{}, err
		}
		if i == 0 {
			firstRate = rate
		} else if rate != firstRate {
			uniform = false
		}
		amount := maxKVA * rate
		item.Units += maxKVA
		item.Total += amount
		item.Meta = append(item.Meta, MetaEntry{
			Label:  m.String(),
			Season: string(season),
			KVA:    maxKVA,
			Rate:   rate,
			Amount: amount,
		})
	}
	if uniform || item.Units == 0 {
		item.Rate = firstRate
		item.RateLabel = formatRate(firstRate)
		return item, nil
	}
	item.Rate = item.Total / item.Units
	item.RateIsAverage = true
	item.RateLabel = averageRateLabel(item.Rate)
	return item, nil
}

// evaluateNetworkAccess charges the maximum peak or standard kVA of the
// whole run at the voltage rate.
func evaluateNetworkAccess(spec tariff.ChargeSpec, view *AggregateView, voltage string) (LineItem, error) {
	rate, err := spec.Rate(voltage)
	if err != nil {
		return LineItem{}, err
	}
	maxKVA, err := view.MaxKVA()
	if err != nil {
		return LineItem{}, &InsufficientDataError{Charge: spec.Name}
	}
	item := newLineItem(spec)
	item.Units = maxKVA
	item.UnitsType = "kVA"
	item.Rate = rate
	item.RateLabel = formatRate(rate)
	item.Total = rate * maxKVA
	return item, nil
}

// evaluateEnergy prices every reading's kWh at its season and rate period
// and reports the per-period sums followed by their total.
func evaluateEnergy(spec tariff.ChargeSpec, view *AggregateView, voltage string) (LineItem, error) {
	priced, err := view.PricedEnergy(func(r ClassifiedReading) (float64, error) {
		return spec.Rate(string(r.Season), voltage, string(r.RatePeriod))
	})
	if err != nil {
		return LineItem{}, err
	}
	item := newLineItem(spec)
	item.UnitsType = "kWh"
	var total EnergyTotals
	for _, p := range tariff.RatePeriods() {
		t := priced[p]
		total = total.add(t)
		item.Meta = append(item.Meta, MetaEntry{Label: string(p), KW: t.KW, KWh: t.KWh, Amount: t.Amount})
	}
	item.Meta = append(item.Meta, MetaEntry{Label: "total", KW: total.KW, KWh: total.KWh, Amount: total.Amount})
	item.Total = total.Amount
	item.Units = total.KWh
	if total.KWh != 0 {
		item.Rate = total.Amount / total.KWh
	}
	item.RateIsAverage = true
	item.RateLabel = averageRateLabel(item.Rate)
	return item, nil
}
