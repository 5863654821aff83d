// Command billcalc prices meter exports against tariff definitions.
//
// Usage:
//
//	billcalc bill --tariff tariffs/coe.yaml --readings meter.xlsx [options]
//	billcalc peak --readings meters.xlsx
//	billcalc tariffs --dir tariffs
//	billcalc validate tariffs/*.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	billingapp "tariff-billing/internal/billing/application"
	billinginterfaces "tariff-billing/internal/billing/interfaces"
	metering "tariff-billing/internal/metering/domain"
	"tariff-billing/internal/metering/infrastructure/spreadsheet"
	"tariff-billing/internal/observability/logging"
	"tariff-billing/internal/observability/metrics"
	tarifffile "tariff-billing/internal/tariff/infrastructure/file"
	tariffmemory "tariff-billing/internal/tariff/infrastructure/memory"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "billcalc",
		Usage:   "Compute electricity bills from interval meter data",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			billCommand(),
			peakCommand(),
			tariffsCommand(),
			validateCommand(),
		},
	}
}

func readingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "readings",
			Aliases:  []string{"r"},
			Usage:    "Meter export (.xlsx or .csv)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "sheet",
			Usage: "Workbook sheet name (default first sheet)",
		},
		&cli.Float64Flag{
			Name:    "multiplier",
			Value:   1,
			Usage:   "Scale factor applied to kW, kVAR and kVA",
			EnvVars: []string{"READING_MULTIPLIER"},
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: 30 * time.Minute,
			Usage: "Reading interval",
		},
		&cli.StringFlag{
			Name:    "date-layout",
			Value:   spreadsheet.DefaultDateLayout,
			Usage:   "Go time layout of the Date column",
			EnvVars: []string{"DATE_LAYOUT"},
		},
		&cli.StringFlag{
			Name:  "separator",
			Value: ",",
			Usage: "CSV field separator",
		},
	}
}

func readingOptions(c *cli.Context) (spreadsheet.Options, error) {
	sep := []rune(c.String("separator"))
	if len(sep) != 1 {
		return spreadsheet.Options{}, fmt.Errorf("separator must be one character, got %q", c.String("separator"))
	}
	if c.Float64("multiplier") <= 0 {
		return spreadsheet.Options{}, fmt.Errorf("multiplier must be positive, got %v", c.Float64("multiplier"))
	}
	return spreadsheet.Options{
		Sheet:      c.String("sheet"),
		Multiplier: c.Float64("multiplier"),
		DateLayout: c.String("date-layout"),
		Separator:  sep[0],
		Interval:   c.Duration("interval"),
	}, nil
}

func billCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "tariff",
			Aliases:  []string{"t"},
			Usage:    "Tariff definition file (.yaml or .json)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "voltage",
			Value:   "230_400_V",
			Usage:   "Voltage/connection class",
			EnvVars: []string{"DEFAULT_VOLTAGE_TYPE"},
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format (table, json, csv, xlsx, pdf)",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Write output to a file instead of stdout",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Value: 1,
			Usage: "Charges evaluated at once",
		},
	}
	return &cli.Command{
		Name:   "bill",
		Usage:  "Price a meter export against a tariff",
		Flags:  append(flags, readingFlags()...),
		Action: runBill,
	}
}

func runBill(c *cli.Context) error {
	logger, err := logging.New(c.String("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	format, err := billinginterfaces.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	opts, err := readingOptions(c)
	if err != nil {
		return err
	}
	def, err := tarifffile.LoadFile(c.String("tariff"))
	if err != nil {
		return err
	}
	catalogue, err := tariffmemory.NewCatalogue(def)
	if err != nil {
		return err
	}

	start := time.Now()
	series, err := spreadsheet.ReadFile(c.String("readings"), opts)
	source := strings.TrimPrefix(strings.ToLower(filepath.Ext(c.String("readings"))), ".")
	if err != nil {
		metrics.ObserveReadingsIngest(source, metrics.ResultError, time.Since(start))
		return err
	}
	metrics.ObserveReadingsIngest(source, metrics.ResultSuccess, time.Since(start))
	metrics.AddReadingsIngested(series.Len())
	logger.Info("readings loaded", zap.String("file", c.String("readings")), zap.Int("readings", series.Len()))

	svc, err := billingapp.NewBillingService(catalogue,
		billingapp.WithLogger(logger),
		billingapp.WithConcurrency(c.Int("concurrency")),
	)
	if err != nil {
		return err
	}
	bill, err := svc.Calculate(context.Background(), billingapp.BillRequest{
		TariffCode:  def.Code,
		VoltageType: c.String("voltage"),
		Series:      series,
	})
	if err != nil {
		return err
	}
	out, err := billinginterfaces.Render(format, bill)
	if err != nil {
		return err
	}
	return writeOutput(c, out)
}

func writeOutput(c *cli.Context, data []byte) error {
	if path := c.String("out"); path != "" {
		return os.WriteFile(path, data, 0o644)
	}
	_, err := c.App.Writer.Write(data)
	return err
}

func peakCommand() *cli.Command {
	return &cli.Command{
		Name:   "peak",
		Usage:  "Find the instant of highest combined kVA across the meters of a workbook",
		Flags:  readingFlags(),
		Action: runPeak,
	}
}

func runPeak(c *cli.Context) error {
	opts, err := readingOptions(c)
	if err != nil {
		return err
	}
	f, err := os.Open(c.String("readings"))
	if err != nil {
		return err
	}
	defer f.Close()

	sheets, err := spreadsheet.ReadXLSXSheets(f, opts)
	if err != nil {
		return err
	}
	var selected []spreadsheet.Sheet
	for _, sheet := range sheets {
		if opts.Sheet == "" || sheet.Name == opts.Sheet {
			selected = append(selected, sheet)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("%w: %s", spreadsheet.ErrSheetNotFound, opts.Sheet)
	}
	return printPeak(c.App.Writer, selected)
}

func printPeak(w io.Writer, sheets []spreadsheet.Sheet) error {
	series := make([]metering.Series, len(sheets))
	for i, sheet := range sheets {
		series[i] = sheet.Series
	}
	peak, err := spreadsheet.HighestKVA(series...)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "peak\t%s\n", peak.Timestamp.Format("2006-01-02 15:04"))
	for i, sheet := range sheets {
		fmt.Fprintf(tw, "%s\t%s kVA\n", sheet.Name, decimal.NewFromFloat(peak.MeterKVA[i]).Round(3).String())
	}
	fmt.Fprintf(tw, "total\t%s kVA\n", decimal.NewFromFloat(peak.TotalKVA).Round(3).String())
	return tw.Flush()
}

func tariffsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tariffs",
		Usage: "List the tariff definitions in a directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Value:   "tariffs",
				Usage:   "Tariff directory",
				EnvVars: []string{"TARIFF_DIR"},
			},
		},
		Action: func(c *cli.Context) error {
			defs, err := tarifffile.LoadDir(c.String("dir"))
			if err != nil {
				return err
			}
			catalogue, err := tariffmemory.NewCatalogue(defs...)
			if err != nil {
				return err
			}
			list, err := catalogue.List(context.Background())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "code\tvalid\tcharges\tname")
			for _, def := range list {
				names := make([]string, len(def.Charges))
				for i, charge := range def.Charges {
					names[i] = charge.Name
				}
				fmt.Fprintf(tw, "%s\t%s..%s\t%s\t%s\n", def.Code,
					def.PeriodStart.Format("2006-01-02"), def.PeriodEnd.Format("2006-01-02"),
					strings.Join(names, ","), def.DisplayName)
			}
			return tw.Flush()
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate tariff definition files",
		ArgsUsage: "FILE...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("validate: at least one file required")
			}
			failed := 0
			for _, path := range c.Args().Slice() {
				def, err := tarifffile.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(c.App.Writer, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(c.App.Writer, "ok   %s (%s)\n", path, def.Code)
			}
			if failed > 0 {
				return fmt.Errorf("validate: %d of %d files invalid", failed, c.NArg())
			}
			return nil
		},
	}
}
