package file

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tariff "tariff-billing/internal/tariff/domain"
)

const sampleTariff = "../../../../tariffs/coe_tariff_c_2020_2021.yaml"

const minimalYAML = `
region: coe
code: test_tariff
name: test
display_name: Test Tariff
country: SA
currency: rand
period_start: "2020-07-01"
period_end: "2021-06-30"
expires: "2021-06-30"
high_demand_months: [6, 7, 8]
vat_rate: 0.15
meta:
  description: test
time_of_use:
  high_demand:
    "14": [peak]
charges:
  - name: fixed_charge
    rate_billing_type: per_month
    types:
      230_400_V: 100
`

func TestLoadSampleTariff(t *testing.T) {
	def, err := LoadFile(sampleTariff)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if def.Code != "coe_tariff_c_2020_2021" || def.Symbol() != "R" || def.VATRate != 0.15 {
		t.Fatalf("unexpected header %+v", def)
	}
	if len(def.Charges) != 4 {
		t.Fatalf("expected 4 charges, got %d", len(def.Charges))
	}
	kinds := []tariff.ChargeKind{tariff.KindFixed, tariff.KindDemand, tariff.KindNetworkAccess, tariff.KindEnergy}
	for i, kind := range kinds {
		if def.Charges[i].Kind != kind {
			t.Fatalf("charge %d: expected %s, got %s", i, kind, def.Charges[i].Kind)
		}
	}
	rate, err := def.Charges[3].Rate("low_demand", "230_400_V_DIRECT", "standard")
	if err != nil || rate != 1.3229 {
		t.Fatalf("energy rate: %v %v", rate, err)
	}
	base := def.Charges[2].BaseRate
	if base.Units != 25 || base.UnitType != "kva" || base.RateBillingType != tariff.BillingPerMonth {
		t.Fatalf("unexpected base rate %+v", base)
	}
	if !def.Charges[1].BaseRate.IsZero() {
		t.Fatalf("expected no base rate on demand charge")
	}

	classifier, err := tariff.NewClassifier(def)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	for h := 0; h < 24; h++ {
		for _, season := range []time.Month{time.July, time.January} {
			at := time.Date(2021, season, 14, h, 45, 0, 0, time.UTC)
			if at.Weekday() == time.Sunday {
				at = at.AddDate(0, 0, 1)
			}
			if _, err := classifier.Classify(at); err != nil {
				t.Fatalf("sample time of use incomplete at %s: %v", at, err)
			}
		}
	}
	youthDay := time.Date(2020, 6, 16, 8, 0, 0, 0, time.UTC)
	got, err := classifier.Classify(youthDay)
	if err != nil || got.RatePeriod != tariff.PeriodOffPeak {
		t.Fatalf("expected holiday off-peak, got %+v %v", got, err)
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{
		"region": "coe", "code": "json_tariff", "name": "n", "display_name": "JSON",
		"country": "SA", "currency": "rand", "period_start": "2020-07-01",
		"period_end": "2021-06-30", "expires": "2021-06-30", "tariff_map": [],
		"high_demand_months": [6], "meta": {"description": "d"},
		"charges": [{"name": "consumption_display", "rate_billing_type": "per_month", "types": {"230_400_V": 12.5}, "base_rate": {}}]
	}`
	def, err := Parse([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if def.Charges[0].Kind != tariff.KindConsumptionDisplay || def.Symbol() != "rand" {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name    string
		replace [2]string
		field   string
	}{
		{"missing region", [2]string{"region: coe\n", ""}, "region"},
		{"missing meta", [2]string{"meta:\n  description: test\n", ""}, "meta"},
		{"bad date", [2]string{`period_end: "2021-06-30"`, `period_end: "30/06/2021"`}, "period_end"},
		{"unknown charge", [2]string{"name: fixed_charge", "name: service_charge"}, "charges"},
		{"unknown billing type", [2]string{"rate_billing_type: per_month", "rate_billing_type: per_fortnight"}, "charges.fixed_charge.rate_billing_type"},
		{"empty high demand", [2]string{"high_demand_months: [6, 7, 8]", "high_demand_months: []"}, "high_demand_months"},
		{"bad month", [2]string{"high_demand_months: [6, 7, 8]", "high_demand_months: [6, 13]"}, "high_demand_months"},
		{"bad season", [2]string{"  high_demand:\n    \"14\"", "  winter:\n    \"14\""}, "time_of_use"},
		{"bad period", [2]string{"[peak]", "[shoulder]"}, "time_of_use.high_demand.14[0]"},
		{"bad hour", [2]string{`"14": [peak]`, `"24": [peak]`}, "time_of_use.high_demand"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := strings.Replace(minimalYAML, tc.replace[0], tc.replace[1], 1)
			if doc == minimalYAML {
				t.Fatalf("replacement %q did not apply", tc.replace[0])
			}
			_, err := Parse([]byte(doc), FormatYAML)
			if !errors.Is(err, tariff.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var cfgErr *tariff.ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, cfgErr)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	doc := minimalYAML + "surcharge: 12\n"
	if _, err := Parse([]byte(doc), FormatYAML); !errors.Is(err, tariff.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseRejectsWrongRateDepth(t *testing.T) {
	doc := strings.Replace(minimalYAML, "name: fixed_charge", "name: demand_charge", 1)
	_, err := Parse([]byte(doc), FormatYAML)
	var cfgErr *tariff.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "charges.demand_charge.types" {
		t.Fatalf("expected rate depth error, got %v", err)
	}
	if cfgErr.Tariff != "test_tariff" {
		t.Fatalf("expected tariff code on error, got %q", cfgErr.Tariff)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.yaml", minimalYAML)
	write("b.yml", strings.Replace(minimalYAML, "code: test_tariff", "code: other_tariff", 1))
	write("notes.txt", "ignored")

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 2 || defs[0].Code != "test_tariff" || defs[1].Code != "other_tariff" {
		t.Fatalf("unexpected definitions %d", len(defs))
	}

	write("c.yaml", minimalYAML)
	if _, err := LoadDir(dir); !errors.Is(err, tariff.ErrConfiguration) {
		t.Fatalf("expected duplicate code rejected, got %v", err)
	}
}
