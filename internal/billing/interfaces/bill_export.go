package interfaces

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"tariff-billing/internal/billing/application"
	"tariff-billing/internal/observability/metrics"
)

// Format is a bill export format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatPDF   Format = "pdf"
	FormatTable Format = "table"
)

// ErrUnknownFormat is returned for unsupported export formats.
var ErrUnknownFormat = errors.New("bill export: unknown format")

// ParseFormat parses a format name. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX, FormatPDF, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// ContentType returns the media type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatTable:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension of the format.
func (f Format) Extension() string {
	if f == FormatTable {
		return ".txt"
	}
	return "." + string(f)
}

// Render exports bill in the requested format and records export metrics.
func Render(format Format, bill *application.Bill) ([]byte, error) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	if bill == nil {
		err = errors.New("bill export: nil bill")
	} else {
		switch format {
		case FormatJSON:
			out, err = BuildBillJSON(bill)
		case FormatCSV:
			out, err = BuildBillCSV(bill)
		case FormatXLSX:
			out, err = BuildBillXLSX(bill)
		case FormatPDF:
			out, err = BuildBillPDF(bill)
		case FormatTable:
			out, err = BuildBillTable(bill)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveBillExport(string(format), result, time.Since(start))
	return out, err
}

// BuildBillJSON renders the bill as indented JSON.
func BuildBillJSON(bill *application.Bill) ([]byte, error) {
	data, err := json.MarshalIndent(bill, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// BuildBillCSV renders one row per line item followed by the summary rows.
func BuildBillCSV(bill *application.Bill) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"charge", "name", "units", "units_type", "rate", "total"})
	for _, item := range bill.LineItems {
		_ = writer.Write([]string{
			item.Charge,
			item.Name,
			quantity(item.Units),
			item.UnitsType,
			item.RateLabel,
			money(item.Total),
		})
	}
	s := bill.Summary
	_ = writer.Write([]string{"total", "", "", "", "", money(s.Total)})
	_ = writer.Write([]string{"vat", "VAT", "", "", s.VATRateHuman, money(s.VATAmount)})
	_ = writer.Write([]string{"total_incl_vat", "Total incl. VAT", "", "", "", money(s.TotalInclVAT)})
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillXLSX renders summary, line item and breakdown sheets.
func BuildBillXLSX(bill *application.Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	itemsSheet := "items"
	detailSheet := "detail"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{itemsSheet, detailSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	s := bill.Summary
	summary := [][]any{
		{"Bill", bill.DisplayName},
		{"Run", bill.RunID},
		{"Tariff", bill.TariffCode},
		{"Voltage type", bill.VoltageType},
		{"Period start", bill.PeriodStart.Format(time.RFC3339)},
		{"Period end", bill.PeriodEnd.Format(time.RFC3339)},
		{"Readings", bill.Readings},
		{"Currency", s.Currency},
		{"Total", round(s.Total, 2)},
		{"VAT rate", s.VATRateHuman},
		{"VAT", round(s.VATAmount, 2)},
		{"Total incl. VAT", round(s.TotalInclVAT, 2)},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	items := [][]any{{"Charge", "Name", "Units", "Units type", "Rate", "Total"}}
	for _, item := range bill.LineItems {
		items = append(items, []any{item.Charge, item.Name, round(item.Units, 3), item.UnitsType, item.RateLabel, round(item.Total, 2)})
	}
	if err := writeRows(f, itemsSheet, items); err != nil {
		return nil, err
	}

	detail := [][]any{{"Charge", "Label", "Season", "kW", "kWh", "Max kVA", "Rate", "Amount"}}
	for _, item := range bill.LineItems {
		for _, m := range item.Meta {
			detail = append(detail, []any{item.Charge, m.Label, m.Season, round(m.KW, 3), round(m.KWh, 3), round(m.KVA, 3), m.Rate, round(m.Amount, 2)})
		}
	}
	if err := writeRows(f, detailSheet, detail); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// BuildBillPDF renders a one page PDF bill.
func BuildBillPDF(bill *application.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Electricity Bill")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	header := []string{
		fmt.Sprintf("Tariff: %s", bill.DisplayName),
		fmt.Sprintf("Voltage type: %s", bill.VoltageType),
		fmt.Sprintf("Period: %s to %s", bill.PeriodStart.Format("2006-01-02 15:04"), bill.PeriodEnd.Format("2006-01-02 15:04")),
		fmt.Sprintf("Months: %s", strings.Join(bill.Months, ", ")),
		fmt.Sprintf("Run: %s", bill.RunID),
		fmt.Sprintf("Generated: %s", bill.CalculatedAt.Format(time.RFC3339)),
	}
	for _, line := range header {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Charge", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Units", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range bill.LineItems {
		pdf.CellFormat(60, 6, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, quantity(item.Units)+" "+item.UnitsType, "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, item.RateLabel, "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, money(item.Total), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	s := bill.Summary
	pdf.Ln(4)
	totals := []string{
		fmt.Sprintf("Total (%s): %s%s", s.Currency, s.Symbol, money(s.Total)),
		fmt.Sprintf("VAT %s: %s%s", s.VATRateHuman, s.Symbol, money(s.VATAmount)),
		fmt.Sprintf("Total incl. VAT: %s%s", s.Symbol, money(s.TotalInclVAT)),
	}
	for _, line := range totals {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillTable renders an aligned plain text table.
func BuildBillTable(bill *application.Bill) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", bill.DisplayName)
	fmt.Fprintf(&buf, "voltage %s, %d readings, months %s\n", bill.VoltageType, bill.Readings, strings.Join(bill.Months, ", "))
	pf := bill.PowerFactor
	fmt.Fprintf(&buf, "power factor min %s, max %s, avg %s\n\n", pfLabel(pf.Min), pfLabel(pf.Max), pfLabel(pf.Avg))

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "charge\tunits\trate\ttotal\t")
	for _, item := range bill.LineItems {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t\n", item.Name, quantity(item.Units), item.UnitsType, item.RateLabel, money(item.Total))
	}
	s := bill.Summary
	fmt.Fprintf(tw, "total\t\t\t%s%s\t\n", s.Symbol, money(s.Total))
	fmt.Fprintf(tw, "vat\t\t%s\t%s%s\t\n", s.VATRateHuman, s.Symbol, money(s.VATAmount))
	fmt.Fprintf(tw, "total incl. vat\t\t\t%s%s\t\n", s.Symbol, money(s.TotalInclVAT))
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pfLabel(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func quantity(v float64) string {
	return decimal.NewFromFloat(v).Round(3).String()
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
