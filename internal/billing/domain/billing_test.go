package billing

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	metering "tariff-billing/internal/metering/domain"
	tariff "tariff-billing/internal/tariff/domain"
)

const lowVoltage = "230_400_V"

func flatRates(rates map[string]float64) tariff.RateTree {
	children := make(map[string]tariff.RateTree, len(rates))
	for k, v := range rates {
		children[k] = tariff.RateLeaf(v)
	}
	return tariff.RateBranch(children)
}

func mustCharge(t *testing.T, name string, billingType tariff.RateBillingType, rates tariff.RateTree) tariff.ChargeSpec {
	t.Helper()
	spec, err := tariff.NewChargeSpec(name, billingType, rates, tariff.BaseRate{})
	if err != nil {
		t.Fatalf("charge %s: %v", name, err)
	}
	return spec
}

// testTariff has hour 14 as peak, 00-05 as off-peak and everything else
// standard, in both seasons.
func testTariff(t *testing.T) *tariff.Definition {
	t.Helper()
	table := make(map[tariff.Season]map[int]tariff.HourSlots, 2)
	for _, season := range tariff.Seasons() {
		hours := make(map[int]tariff.HourSlots, 24)
		for h := 0; h < 24; h++ {
			switch {
			case h == 14:
				hours[h] = tariff.HourSlots{tariff.PeriodPeak, tariff.PeriodPeak}
			case h < 6:
				hours[h] = tariff.HourSlots{tariff.PeriodOffPeak, tariff.PeriodOffPeak}
			default:
				hours[h] = tariff.HourSlots{tariff.PeriodStandard, tariff.PeriodStandard}
			}
		}
		table[season] = hours
	}
	tou, err := tariff.NewTimeOfUseTable(table)
	if err != nil {
		t.Fatalf("time of use: %v", err)
	}

	energyBySeason := func(offPeak, peak, standard float64) tariff.RateTree {
		return tariff.RateBranch(map[string]tariff.RateTree{
			lowVoltage: flatRates(map[string]float64{"off_peak": offPeak, "peak": peak, "standard": standard}),
		})
	}
	def := &tariff.Definition{
		Region:           "coe",
		Code:             "coe_tariff_c_2020_2021",
		Name:             "Tariff C",
		DisplayName:      "CoE Tariff C 2020/2021",
		Country:          "SA",
		Currency:         "rand",
		CurrencySymbol:   "R",
		PeriodStart:      time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		Expires:          time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		HighDemandMonths: []time.Month{time.June, time.July, time.August},
		VATRate:          0.15,
		TimeOfUse:        tou,
		Calendar: tariff.CalendarRules{
			Holidays: []tariff.Holiday{{Month: time.June, Day: 16}, {Month: time.August, Day: 9}},
		},
		Charges: []tariff.ChargeSpec{
			mustCharge(t, "fixed_charge", tariff.BillingPerMonth, flatRates(map[string]float64{
				lowVoltage: 2273.82, "LESS_11KV_230_400_V": 3227.17,
			})),
			mustCharge(t, "demand_charge", tariff.BillingPerMaxKVAPerMonth, tariff.RateBranch(map[string]tariff.RateTree{
				"high_demand": flatRates(map[string]float64{lowVoltage: 168.48, "230_400_V_DIRECT": 162.44}),
				"low_demand":  flatRates(map[string]float64{lowVoltage: 140.4, "230_400_V_DIRECT": 135.37}),
			})),
			mustCharge(t, "network_access_charge", tariff.BillingPerMaxKVAPerMonth, flatRates(map[string]float64{
				lowVoltage: 48.85, "230_400_V_DIRECT": 47.12,
			})),
			mustCharge(t, "energy_charge", tariff.BillingPerKWh, tariff.RateBranch(map[string]tariff.RateTree{
				"high_demand": energyBySeason(1.1, 2.2518, 1.6),
				"low_demand":  energyBySeason(0.9, 1.3468, 1.2),
			})),
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("validate tariff: %v", err)
	}
	return def
}

func tariffWith(t *testing.T, names ...string) *tariff.Definition {
	t.Helper()
	def := testTariff(t)
	var charges []tariff.ChargeSpec
	for _, name := range names {
		for _, c := range def.Charges {
			if c.Name == name {
				charges = append(charges, c)
			}
		}
	}
	def.Charges = charges
	return def
}

func mustSeries(t *testing.T, readings ...metering.MeterReading) metering.Series {
	t.Helper()
	series, err := metering.NewSeries(30*time.Minute, readings)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	return series
}

func reading(at time.Time, kw, kva float64) metering.MeterReading {
	return metering.MeterReading{Timestamp: at, KW: kw, KVA: kva}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestEnergyChargeSingleReading(t *testing.T) {
	def := tariffWith(t, "energy_charge")
	at := time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC)
	items, err := CalculateTariff(def, mustSeries(t, reading(at, 50, 60)), lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	kw, rate := 50.0, 2.2518
	if want := (kw * 0.5) * rate; item.Total != want {
		t.Fatalf("expected %v, got %v", want, item.Total)
	}
	if item.Units != 25 || item.UnitsType != "kWh" {
		t.Fatalf("unexpected units %v %s", item.Units, item.UnitsType)
	}
	if item.RateLabel != "2.2518 (avg)" {
		t.Fatalf("unexpected rate label %q", item.RateLabel)
	}
	labels := make([]string, 0, len(item.Meta))
	for _, m := range item.Meta {
		labels = append(labels, m.Label)
	}
	if strings.Join(labels, ",") != "off_peak,peak,standard,total" {
		t.Fatalf("unexpected meta order %v", labels)
	}
	if item.Meta[1].KWh != 25 || item.Meta[1].KW != 50 {
		t.Fatalf("unexpected peak meta %+v", item.Meta[1])
	}
}

func TestEnergyChargeEqualsRowSumAndMetaSum(t *testing.T) {
	def := tariffWith(t, "energy_charge")
	start := time.Date(2021, 5, 31, 0, 0, 0, 0, time.UTC)
	var readings []metering.MeterReading
	for i := 0; i < 4*48; i++ {
		at := start.Add(time.Duration(i) * 30 * time.Minute)
		readings = append(readings, reading(at, float64(10+i%17), float64(12+i%19)))
	}
	series := mustSeries(t, readings...)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	item := items[0]

	classifier, err := tariff.NewClassifier(def)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	var rowSum float64
	for _, r := range readings {
		class, err := classifier.Classify(r.Timestamp)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		rate, err := def.Charges[0].Rate(string(class.Season), lowVoltage, string(class.RatePeriod))
		if err != nil {
			t.Fatalf("rate: %v", err)
		}
		rowSum += r.KW * 0.5 * rate
	}
	if !almostEqual(item.Total, rowSum) {
		t.Fatalf("expected row sum %v, got %v", rowSum, item.Total)
	}

	var metaSum float64
	for _, m := range item.Meta[:3] {
		metaSum += m.Amount
	}
	total := item.Meta[3]
	if total.Label != "total" || total.Amount != item.Total || metaSum != item.Total {
		t.Fatalf("meta does not reconcile: periods %v total %v item %v", metaSum, total.Amount, item.Total)
	}
	if !almostEqual(item.Rate*item.Units, item.Total) {
		t.Fatalf("average rate does not reconcile")
	}
}

func TestFixedChargeBillsPerDistinctMonth(t *testing.T) {
	def := tariffWith(t, "fixed_charge")
	series := mustSeries(t,
		reading(time.Date(2021, 1, 12, 10, 0, 0, 0, time.UTC), 1, 1),
		reading(time.Date(2021, 1, 13, 10, 0, 0, 0, time.UTC), 1, 1),
		reading(time.Date(2021, 2, 10, 10, 0, 0, 0, time.UTC), 1, 1),
		reading(time.Date(2021, 3, 10, 10, 0, 0, 0, time.UTC), 1, 1),
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	rate, months := 2273.82, 3.0
	if want := rate * months; items[0].Total != want {
		t.Fatalf("expected %v, got %v", want, items[0].Total)
	}
	if items[0].Units != 3 || items[0].UnitsType != "months" {
		t.Fatalf("unexpected units %v %s", items[0].Units, items[0].UnitsType)
	}
}

func TestFixedChargeKeepsSameMonthOfDifferentYearsApart(t *testing.T) {
	def := tariffWith(t, "fixed_charge")
	series := mustSeries(t,
		reading(time.Date(2020, 7, 13, 10, 0, 0, 0, time.UTC), 1, 1),
		reading(time.Date(2021, 7, 13, 10, 0, 0, 0, time.UTC), 1, 1),
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if items[0].Units != 2 {
		t.Fatalf("expected 2 billing months, got %v", items[0].Units)
	}
}

func TestDemandChargePerMonthSeason(t *testing.T) {
	def := tariffWith(t, "demand_charge")
	series := mustSeries(t,
		reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 80, 120),
		reading(time.Date(2021, 7, 15, 15, 0, 0, 0, time.UTC), 70, 110),
		reading(time.Date(2021, 7, 18, 14, 0, 0, 0, time.UTC), 300, 400), // Sunday
		reading(time.Date(2021, 7, 16, 2, 0, 0, 0, time.UTC), 300, 450),  // off-peak hour
		reading(time.Date(2021, 1, 14, 9, 0, 0, 0, time.UTC), 60, 95),
		reading(time.Date(2021, 1, 14, 9, 30, 0, 0, time.UTC), 50, 90),
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	item := items[0]
	highRate, lowRate := 168.48, 140.4
	if want := highRate*120 + lowRate*95; !almostEqual(item.Total, want) {
		t.Fatalf("expected %v, got %v", want, item.Total)
	}
	if item.Units != 215 || !item.RateIsAverage {
		t.Fatalf("unexpected units %v average %v", item.Units, item.RateIsAverage)
	}
	if len(item.Meta) != 2 || item.Meta[0].Label != "2021-01" || item.Meta[1].Label != "2021-07" {
		t.Fatalf("unexpected meta %+v", item.Meta)
	}
	if item.Meta[1].Season != "high_demand" || item.Meta[1].KVA != 120 || item.Meta[1].Rate != 168.48 {
		t.Fatalf("unexpected july meta %+v", item.Meta[1])
	}
}

func TestDemandChargeUniformRate(t *testing.T) {
	def := tariffWith(t, "demand_charge")
	series := mustSeries(t,
		reading(time.Date(2021, 6, 15, 14, 0, 0, 0, time.UTC), 80, 100),
		reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 80, 120),
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if items[0].RateIsAverage || items[0].Rate != 168.48 || items[0].RateLabel != "168.48" {
		t.Fatalf("expected plain rate, got %+v", items[0])
	}
}

func TestDemandChargeMonthWithoutDemandReadings(t *testing.T) {
	def := tariffWith(t, "fixed_charge", "demand_charge")
	series := mustSeries(t,
		reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 80, 120),
		reading(time.Date(2021, 8, 1, 14, 0, 0, 0, time.UTC), 80, 120), // Sunday
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
	if items != nil {
		t.Fatalf("expected no partial items, got %d", len(items))
	}
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected typed error")
	}
	if insufficient.Charge != "demand_charge" || insufficient.Month != (BillingMonth{Year: 2021, Month: time.August}) {
		t.Fatalf("unexpected error detail %+v", insufficient)
	}
}

func TestNetworkAccessUsesOverallMaximum(t *testing.T) {
	def := tariffWith(t, "network_access_charge")
	series := mustSeries(t,
		reading(time.Date(2021, 1, 14, 14, 0, 0, 0, time.UTC), 80, 130),
		reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 80, 120),
		reading(time.Date(2021, 7, 16, 3, 0, 0, 0, time.UTC), 80, 900),
	)
	items, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	rate := 48.85
	if want := rate * 130; items[0].Total != want || items[0].Units != 130 {
		t.Fatalf("expected %v on 130 kVA, got %v on %v", want, items[0].Total, items[0].Units)
	}
}

func TestNetworkAccessWithoutDemandReadings(t *testing.T) {
	def := tariffWith(t, "network_access_charge")
	series := mustSeries(t, reading(time.Date(2021, 7, 18, 14, 0, 0, 0, time.UTC), 80, 120))
	if _, err := CalculateTariff(def, series, lowVoltage); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestMissingVoltageIsRateNotFound(t *testing.T) {
	def := testTariff(t)
	series := mustSeries(t, reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 50, 60))
	items, err := CalculateTariff(def, series, "LESS_11KV_230_400_V")
	if !errors.Is(err, tariff.ErrRateNotFound) {
		t.Fatalf("expected rate not found, got %v", err)
	}
	if items != nil {
		t.Fatalf("expected no partial items")
	}
	var notFound *tariff.RateNotFoundError
	if !errors.As(err, &notFound) || notFound.Charge != "demand_charge" {
		t.Fatalf("expected demand charge to fail first, got %+v", notFound)
	}
}

func TestConcurrentEvaluationMatchesSequential(t *testing.T) {
	def := testTariff(t)
	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	var readings []metering.MeterReading
	for i := 0; i < 60*48; i++ {
		at := start.Add(time.Duration(i) * 30 * time.Minute)
		readings = append(readings, reading(at, float64(20+i%23), float64(25+i%29)))
	}
	series := mustSeries(t, readings...)

	sequential, _, err := NewAssembler().CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	concurrent, _, err := NewAssembler(WithConcurrency(4)).CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("concurrent: %v", err)
	}
	if !reflect.DeepEqual(sequential, concurrent) {
		t.Fatalf("concurrent evaluation differs from sequential")
	}
	for i, item := range concurrent {
		if item.Charge != def.Charges[i].Name {
			t.Fatalf("item %d out of declared order: %s", i, item.Charge)
		}
	}
}

func TestConcurrentEvaluationReportsFirstDeclaredFailure(t *testing.T) {
	def := testTariff(t)
	series := mustSeries(t, reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 50, 60))
	_, _, err := NewAssembler(WithConcurrency(4)).CalculateTariff(def, series, "230_400_V_DIRECT")
	var notFound *tariff.RateNotFoundError
	if !errors.As(err, &notFound) || notFound.Charge != "fixed_charge" {
		t.Fatalf("expected fixed charge failure, got %v", err)
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	def := testTariff(t)
	series := mustSeries(t,
		reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 50, 60),
		reading(time.Date(2021, 7, 15, 14, 30, 0, 0, time.UTC), 45, 58),
		reading(time.Date(2021, 2, 3, 8, 0, 0, 0, time.UTC), 30, 40),
	)
	first, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	second, err := CalculateTariff(def, series, lowVoltage)
	if err != nil {
		t.Fatalf("calculate again: %v", err)
	}
	a, b := Summarize(first, def), Summarize(second, def)
	if a != b || Summarize(first, def) != a {
		t.Fatalf("summaries differ: %+v %+v", a, b)
	}

	var total float64
	for _, item := range first {
		total += item.Total
	}
	if a.Total != total || a.VATAmount != total*0.15 || a.TotalInclVAT != total+total*0.15 {
		t.Fatalf("unexpected summary %+v", a)
	}
	if a.VATRateHuman != "15 %" || a.Symbol != "R" || a.Currency != "rand" {
		t.Fatalf("unexpected summary labels %+v", a)
	}
}

func TestAggregateViewMaxKVA(t *testing.T) {
	july := BillingMonth{Year: 2021, Month: time.July}
	view := Aggregate([]ClassifiedReading{
		{MeterReading: reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 1, 70), BillingMonth: july, RatePeriod: tariff.PeriodPeak},
		{MeterReading: reading(time.Date(2021, 7, 15, 15, 0, 0, 0, time.UTC), 1, 90), BillingMonth: july, RatePeriod: tariff.PeriodStandard},
		{MeterReading: reading(time.Date(2021, 7, 15, 1, 0, 0, 0, time.UTC), 1, 300), BillingMonth: july, RatePeriod: tariff.PeriodOffPeak},
	})
	got, err := view.MaxKVA()
	if err != nil || got != 90 {
		t.Fatalf("expected 90, got %v %v", got, err)
	}
	if _, err := view.MaxKVAForMonth(BillingMonth{Year: 2021, Month: time.June}); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data for june, got %v", err)
	}

	offPeakOnly := Aggregate([]ClassifiedReading{
		{MeterReading: reading(time.Date(2021, 7, 18, 14, 0, 0, 0, time.UTC), 1, 300), BillingMonth: july, RatePeriod: tariff.PeriodOffPeak},
	})
	if _, err := offPeakOnly.MaxKVA(); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
	energy := offPeakOnly.EnergyByPeriod()
	if len(energy) != 3 || energy[tariff.PeriodOffPeak].Readings != 1 || energy[tariff.PeriodPeak].Readings != 0 {
		t.Fatalf("unexpected energy totals %+v", energy)
	}
}

func TestClassifyProducesNewValues(t *testing.T) {
	def := testTariff(t)
	classifier, err := tariff.NewClassifier(def)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	series := mustSeries(t, reading(time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC), 50, 60))
	classified, err := Classify(series, classifier)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	classified[0].KW = 999
	if series.At(0).KW != 50 {
		t.Fatalf("classification aliases the series")
	}
	if classified[0].Season != tariff.SeasonHighDemand || classified[0].RatePeriod != tariff.PeriodPeak || classified[0].KWh != 25 {
		t.Fatalf("unexpected classification %+v", classified[0])
	}
}

func TestLineItemAsMap(t *testing.T) {
	item := LineItem{
		Name:            "Network access charge",
		Charge:          "network_access_charge",
		Kind:            tariff.KindNetworkAccess,
		RateBillingType: tariff.BillingPerMaxKVAPerMonth,
		Total:           100,
		Units:           2,
		UnitsType:       "kVA",
		RateLabel:       "50",
		BaseRate:        &tariff.BaseRate{RateBillingType: tariff.BillingPerMonth, Units: 25, UnitType: "kva"},
	}
	m := item.AsMap()
	if m["rate_billing_type"] != "per max kva per month" || m["rate"] != "50" {
		t.Fatalf("unexpected map %v", m)
	}
	base, ok := m["base_rate"].(map[string]any)
	if !ok || base["units"] != 25.0 {
		t.Fatalf("unexpected base rate %v", m["base_rate"])
	}
}

func TestCalculateTariffRejectsReadingsOutsideValidity(t *testing.T) {
	def := testTariff(t)
	series := mustSeries(t,
		reading(time.Date(2021, 6, 16, 14, 0, 0, 0, time.UTC), 50, 60),
		reading(time.Date(2022, 6, 16, 14, 0, 0, 0, time.UTC), 50, 60),
	)
	for _, assembler := range []*Assembler{NewAssembler(), NewAssembler(WithConcurrency(4))} {
		items, _, err := assembler.CalculateTariff(def, series, lowVoltage)
		if !errors.Is(err, metering.ErrInvalidReading) {
			t.Fatalf("expected invalid reading, got %v", err)
		}
		var vErr *metering.ValidationError
		if !errors.As(err, &vErr) || vErr.Index != 1 || vErr.Field != "timestamp" {
			t.Fatalf("unexpected validation error %+v", vErr)
		}
		if items != nil {
			t.Fatalf("expected no partial items, got %d", len(items))
		}
	}

	if _, err := CalculateTariff(def, mustSeries(t, reading(time.Date(2022, 6, 16, 14, 0, 0, 0, time.UTC), 50, 60)), lowVoltage); !errors.Is(err, metering.ErrInvalidReading) {
		t.Fatalf("expected invalid reading for a holiday after the window, got %v", err)
	}
}

func TestAggregatePowerFactor(t *testing.T) {
	def := testTariff(t)
	classifier, err := tariff.NewClassifier(def)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	start := time.Date(2021, 7, 15, 14, 0, 0, 0, time.UTC)
	series := mustSeries(t,
		reading(start, 50, 100),
		reading(start.Add(30*time.Minute), 90, 100),
		reading(start.Add(time.Hour), 0, 0),
	)
	classified, err := Classify(series, classifier)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	pf := Aggregate(classified).PowerFactor()
	if !almostEqual(pf.Min, 0.5) || !almostEqual(pf.Max, 1) || !almostEqual(pf.Avg, 2.4/3) {
		t.Fatalf("unexpected power factor %+v", pf)
	}

	if empty := Aggregate(nil).PowerFactor(); empty != (PowerFactorStats{Min: 1, Max: 1, Avg: 1}) {
		t.Fatalf("unexpected empty power factor %+v", empty)
	}
}
