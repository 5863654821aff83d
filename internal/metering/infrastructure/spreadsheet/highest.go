package spreadsheet

import (
	"sort"
	"time"

	metering "tariff-billing/internal/metering/domain"
)

// Peak is the instant of highest combined apparent power across meters.
type Peak struct {
	Timestamp time.Time
	// MeterKVA holds each meter's kVA at Timestamp, in argument order.
	// Meters with no reading at that instant contribute zero.
	MeterKVA []float64
	TotalKVA float64
}

// HighestKVA sums kVA per timestamp across the given meter series and
// returns the instant with the largest total. Ties resolve to the earliest
// instant.
func HighestKVA(series ...metering.Series) (Peak, error) {
	totals := make(map[int64]float64)
	instants := make(map[int64]time.Time)
	perMeter := make([]map[int64]float64, len(series))
	for m, s := range series {
		perMeter[m] = make(map[int64]float64, s.Len())
		for i := 0; i < s.Len(); i++ {
			r := s.At(i)
			key := r.Timestamp.UnixNano()
			perMeter[m][key] += r.KVA
			totals[key] += r.KVA
			if _, ok := instants[key]; !ok {
				instants[key] = r.Timestamp
			}
		}
	}
	if len(totals) == 0 {
		return Peak{}, metering.ErrEmptySeries
	}

	keys := make([]int64, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	best := keys[0]
	for _, k := range keys[1:] {
		if totals[k] > totals[best] {
			best = k
		}
	}

	peak := Peak{
		Timestamp: instants[best],
		MeterKVA:  make([]float64, len(series)),
		TotalKVA:  totals[best],
	}
	for m := range series {
		peak.MeterKVA[m] = perMeter[m][best]
	}
	return peak, nil
}
