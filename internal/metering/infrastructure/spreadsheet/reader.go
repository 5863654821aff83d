package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	metering "tariff-billing/internal/metering/domain"
)

// DefaultDateLayout matches the "15/07/2021 14:30" timestamps meter exports use.
const DefaultDateLayout = "02/01/2006 15:04"

var (
	// ErrUnsupportedFile is returned for extensions with no reader.
	ErrUnsupportedFile = errors.New("spreadsheet: unsupported file type")
	// ErrSheetNotFound is returned when the requested sheet does not exist.
	ErrSheetNotFound = errors.New("spreadsheet: sheet not found")
)

var columns = []string{"date", "kw", "kvar", "kva"}

// Options controls how a meter export is read.
type Options struct {
	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
	// Multiplier scales kW, kVAR and kVA. Zero means 1.
	Multiplier float64
	// DateLayout is a Go time layout. Empty means DefaultDateLayout.
	DateLayout string
	// Separator is the CSV field separator. Zero means ','.
	Separator rune
	// Interval is the sampling interval. Zero means metering.DefaultInterval.
	Interval time.Duration
	// Location interprets timestamps. Nil means UTC.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Multiplier == 0 {
		o.Multiplier = 1
	}
	if o.DateLayout == "" {
		o.DateLayout = DefaultDateLayout
	}
	if o.Separator == 0 {
		o.Separator = ','
	}
	if o.Interval == 0 {
		o.Interval = metering.DefaultInterval
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Sheet is the series read from one workbook sheet.
type Sheet struct {
	Name   string
	Series metering.Series
}

// ReadFile reads a .xlsx or .csv meter export.
func ReadFile(path string, opts Options) (metering.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return metering.Series{}, fmt.Errorf("spreadsheet: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, opts)
	case ".csv", ".txt":
		return ReadCSV(f, opts)
	default:
		return metering.Series{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

// ReadXLSX reads one sheet of a workbook.
func ReadXLSX(r io.Reader, opts Options) (metering.Series, error) {
	opts = opts.withDefaults()
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return metering.Series{}, fmt.Errorf("spreadsheet: open workbook: %w", err)
	}
	defer wb.Close()

	sheet := opts.Sheet
	if sheet == "" {
		names := wb.GetSheetList()
		if len(names) == 0 {
			return metering.Series{}, ErrSheetNotFound
		}
		sheet = names[0]
	} else if idx, err := wb.GetSheetIndex(sheet); err != nil || idx < 0 {
		return metering.Series{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	return readSheet(wb, sheet, opts)
}

// ReadXLSXSheets reads every sheet of a workbook, one meter per sheet.
func ReadXLSXSheets(r io.Reader, opts Options) ([]Sheet, error) {
	opts = opts.withDefaults()
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open workbook: %w", err)
	}
	defer wb.Close()

	names := wb.GetSheetList()
	out := make([]Sheet, 0, len(names))
	for _, name := range names {
		series, err := readSheet(wb, name, opts)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		out = append(out, Sheet{Name: name, Series: series})
	}
	return out, nil
}

func readSheet(wb *excelize.File, sheet string, opts Options) (metering.Series, error) {
	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return metering.Series{}, fmt.Errorf("spreadsheet: read sheet %s: %w", sheet, err)
	}
	return parseRows(rows, opts)
}

// ReadCSV reads a delimited meter export.
func ReadCSV(r io.Reader, opts Options) (metering.Series, error) {
	opts = opts.withDefaults()
	cr := csv.NewReader(r)
	cr.Comma = opts.Separator
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return metering.Series{}, fmt.Errorf("spreadsheet: read csv: %w", err)
	}
	return parseRows(rows, opts)
}

func parseRows(rows [][]string, opts Options) (metering.Series, error) {
	header := -1
	for i, row := range rows {
		if !blank(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return metering.Series{}, metering.ErrEmptySeries
	}

	index := make(map[string]int, len(columns))
	for i, cell := range rows[header] {
		name := strings.ToLower(strings.TrimSpace(cell))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range columns {
		if _, ok := index[col]; !ok {
			return metering.Series{}, &metering.ValidationError{Index: header + 1, Field: col, Reason: "missing column"}
		}
	}

	var readings []metering.MeterReading
	var sourceRows []int
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		rowNumber := i + 1
		r, err := parseRow(row, index, rowNumber, opts)
		if err != nil {
			return metering.Series{}, err
		}
		readings = append(readings, r)
		sourceRows = append(sourceRows, rowNumber)
	}

	series, err := metering.NewSeries(opts.Interval, readings)
	if err != nil {
		var vErr *metering.ValidationError
		if errors.As(err, &vErr) && vErr.Index < len(sourceRows) {
			vErr.Index = sourceRows[vErr.Index]
		}
		return metering.Series{}, err
	}
	return series, nil
}

func parseRow(row []string, index map[string]int, rowNumber int, opts Options) (metering.MeterReading, error) {
	cell := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := parseTimestamp(cell("date"), opts)
	if err != nil {
		return metering.MeterReading{}, &metering.ValidationError{Index: rowNumber, Field: "date", Reason: err.Error()}
	}
	out := metering.MeterReading{Timestamp: ts}
	targets := []struct {
		col string
		dst *float64
	}{
		{"kw", &out.KW},
		{"kvar", &out.KVAR},
		{"kva", &out.KVA},
	}
	for _, t := range targets {
		v, err := ParseDecimal(cell(t.col))
		if err != nil {
			return metering.MeterReading{}, &metering.ValidationError{Index: rowNumber, Field: t.col, Reason: err.Error()}
		}
		*t.dst = v * opts.Multiplier
	}
	return out, nil
}

func parseTimestamp(raw string, opts Options) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if ts, err := time.ParseInLocation(opts.DateLayout, raw, opts.Location); err == nil {
		return ts, nil
	}
	// Workbooks store dates as serial day numbers.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Round to the second; serials carry floating point noise.
		ts = ts.Round(time.Second)
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, opts.Location), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q does not match layout %q", raw, opts.DateLayout)
}

// ParseDecimal parses a number that may use a decimal comma.
func ParseDecimal(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
