package billing

import (
	"slices"

	tariff "tariff-billing/internal/tariff/domain"
)

// EnergyTotals sums one rate period. Amount is zero until rates are applied.
type EnergyTotals struct {
	KW       float64
	KWh      float64
	Amount   float64
	Readings int
}

func (t EnergyTotals) add(o EnergyTotals) EnergyTotals {
	return EnergyTotals{
		KW:       t.KW + o.KW,
		KWh:      t.KWh + o.KWh,
		Amount:   t.Amount + o.Amount,
		Readings: t.Readings + o.Readings,
	}
}

// AggregateView is the read-only set of billing quantities derived from a
// classified reading set. It is safe for concurrent readers.
type AggregateView struct {
	readings []ClassifiedReading
	months   []BillingMonth
	seasons  map[BillingMonth]tariff.Season

	maxByMonth map[BillingMonth]float64
	maxOverall float64
	hasMax     bool

	energy map[tariff.RatePeriod]EnergyTotals
	pf     PowerFactorStats
}

// PowerFactorStats summarises kW/kVA over every reading of a view. A reading
// with zero kVA counts as unity. An empty view reports unity throughout.
type PowerFactorStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

func powerFactor(kw, kva float64) float64 {
	if kva == 0 {
		return 1
	}
	return kw / kva
}

// Aggregate builds the view. The readings are copied.
func Aggregate(readings []ClassifiedReading) *AggregateView {
	v := &AggregateView{
		readings:   slices.Clone(readings),
		seasons:    make(map[BillingMonth]tariff.Season),
		maxByMonth: make(map[BillingMonth]float64),
		energy:     make(map[tariff.RatePeriod]EnergyTotals, 3),
	}
	v.pf = PowerFactorStats{Min: 1, Max: 1, Avg: 1}
	pfSum := 0.0
	for i, r := range v.readings {
		pf := powerFactor(r.KW, r.KVA)
		pfSum += pf
		if i == 0 || pf < v.pf.Min {
			v.pf.Min = pf
		}
		if i == 0 || pf > v.pf.Max {
			v.pf.Max = pf
		}

		if _, seen := v.seasons[r.BillingMonth]; !seen {
			v.seasons[r.BillingMonth] = r.Season
			v.months = append(v.months, r.BillingMonth)
		}

		v.energy[r.RatePeriod] = v.energy[r.RatePeriod].add(EnergyTotals{KW: r.KW, KWh: r.KWh, Readings: 1})

		if !r.RatePeriod.IsDemandBasis() {
			continue
		}
		if current, ok := v.maxByMonth[r.BillingMonth]; !ok || r.KVA > current {
			v.maxByMonth[r.BillingMonth] = r.KVA
		}
		if !v.hasMax || r.KVA > v.maxOverall {
			v.maxOverall = r.KVA
			v.hasMax = true
		}
	}
	if len(v.readings) > 0 {
		v.pf.Avg = pfSum / float64(len(v.readings))
	}
	slices.SortFunc(v.months, func(a, b BillingMonth) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return v
}

// Len returns the number of readings in the view.
func (v *AggregateView) Len() int { return len(v.readings) }

// Readings returns a copy of the classified readings.
func (v *AggregateView) Readings() []ClassifiedReading { return slices.Clone(v.readings) }

// DistinctMonths returns the billing months present, oldest first.
func (v *AggregateView) DistinctMonths() []BillingMonth { return slices.Clone(v.months) }

// SeasonOf returns the season readings of month were classified into.
func (v *AggregateView) SeasonOf(month BillingMonth) (tariff.Season, bool) {
	s, ok := v.seasons[month]
	return s, ok
}

// PowerFactor returns the power factor spread of the readings.
func (v *AggregateView) PowerFactor() PowerFactorStats { return v.pf }

// MaxKVA returns the highest kVA among peak and standard readings.
func (v *AggregateView) MaxKVA() (float64, error) {
	if !v.hasMax {
		return 0, &InsufficientDataError{}
	}
	return v.maxOverall, nil
}

// MaxKVAForMonth returns the highest peak or standard kVA within month.
func (v *AggregateView) MaxKVAForMonth(month BillingMonth) (float64, error) {
	kva, ok := v.maxByMonth[month]
	if !ok {
		return 0, &InsufficientDataError{Month: month}
	}
	return kva, nil
}

// EnergyByPeriod returns kW and kWh sums per rate period. Periods with no
// readings are present with zero totals.
func (v *AggregateView) EnergyByPeriod() map[tariff.RatePeriod]EnergyTotals {
	out := make(map[tariff.RatePeriod]EnergyTotals, 3)
	for _, p := range tariff.RatePeriods() {
		out[p] = v.energy[p]
	}
	return out
}

// RateFunc prices one kWh of a classified reading.
type RateFunc func(r ClassifiedReading) (float64, error)

// PricedEnergy applies rate to every reading and returns per-period totals
// with Amount set to the sum of kWh x rate. The first pricing error aborts.
func (v *AggregateView) PricedEnergy(rate RateFunc) (map[tariff.RatePeriod]EnergyTotals, error) {
	out := make(map[tariff.RatePeriod]EnergyTotals, 3)
	for _, p := range tariff.RatePeriods() {
		out[p] = EnergyTotals{}
	}
	for _, r := range v.readings {
		price, err := rate(r)
		if err != nil {
			return nil, err
		}
		out[r.RatePeriod] = out[r.RatePeriod].add(EnergyTotals{
			KW:       r.KW,
			KWh:      r.KWh,
			Amount:   r.KWh * price,
			Readings: 1,
		})
	}
	return out, nil
}
