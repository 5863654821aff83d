package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billing "tariff-billing/internal/billing/domain"
	metering "tariff-billing/internal/metering/domain"
	"tariff-billing/internal/observability/metrics"
	tariff "tariff-billing/internal/tariff/domain"
)

// ErrEmptyTariffCode is returned when a request names no tariff.
var ErrEmptyTariffCode = errors.New("billing service: empty tariff code")

// TariffCatalogue provides read-only tariff definitions.
type TariffCatalogue interface {
	Get(ctx context.Context, code string) (*tariff.Definition, error)
	List(ctx context.Context) ([]*tariff.Definition, error)
}

// BillCalculated is emitted after a bill run succeeds.
type BillCalculated struct {
	RunID        string
	TariffCode   string
	VoltageType  string
	Readings     int
	Total        float64
	TotalInclVAT float64
	Currency     string
	OccurredAt   time.Time
}

// BillPublisher emits bill calculated events.
type BillPublisher interface {
	PublishBillCalculated(ctx context.Context, event BillCalculated) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// BillRequest asks for one bill over a reading series.
type BillRequest struct {
	TariffCode  string
	VoltageType string
	Series      metering.Series
}

// Bill is the priced result of one bill run.
type Bill struct {
	RunID        string                   `json:"run_id"`
	TariffCode   string                   `json:"tariff_code"`
	DisplayName  string                   `json:"display_name"`
	VoltageType  string                   `json:"voltage_type"`
	PeriodStart  time.Time                `json:"period_start"`
	PeriodEnd    time.Time                `json:"period_end"`
	Months       []string                 `json:"months"`
	Readings     int                      `json:"readings"`
	LineItems    []billing.LineItem       `json:"line_items"`
	Summary      billing.BillSummary      `json:"summary"`
	PowerFactor  billing.PowerFactorStats `json:"power_factor"`
	CalculatedAt time.Time                `json:"calculated_at"`
}

// Option configures the service.
type Option func(*BillingService)

// WithPublisher sets the event publisher.
func WithPublisher(publisher BillPublisher) Option {
	return func(s *BillingService) { s.publisher = publisher }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *BillingService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *BillingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency evaluates up to n charges of a bill at once.
func WithConcurrency(n int) Option {
	return func(s *BillingService) { s.assembler = billing.NewAssembler(billing.WithConcurrency(n)) }
}

// WithDefaultVoltageType is used when a request names no voltage type.
func WithDefaultVoltageType(voltage string) Option {
	return func(s *BillingService) { s.defaultVoltage = voltage }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(s *BillingService) {
		if next != nil {
			s.newRunID = next
		}
	}
}

// BillingService runs bills against the tariff catalogue.
type BillingService struct {
	catalogue      TariffCatalogue
	publisher      BillPublisher
	clock          Clock
	logger         *zap.Logger
	assembler      *billing.Assembler
	defaultVoltage string
	newRunID       func() string
}

// NewBillingService constructs the service.
func NewBillingService(catalogue TariffCatalogue, opts ...Option) (*BillingService, error) {
	if catalogue == nil {
		return nil, errors.New("billing service: nil tariff catalogue")
	}
	s := &BillingService{
		catalogue: catalogue,
		clock:     SystemClock{},
		logger:    zap.NewNop(),
		assembler: billing.NewAssembler(),
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Calculate prices the series against the requested tariff. Any failing
// step fails the whole run.
func (s *BillingService) Calculate(ctx context.Context, req BillRequest) (*Bill, error) {
	start := time.Now()
	bill, err := s.calculate(ctx, req)
	if err != nil {
		metrics.ObserveBillRun(req.TariffCode, metrics.ResultError, time.Since(start))
		metrics.IncBillRunError(ErrorReason(err))
		s.logger.Warn("bill run failed",
			zap.String("tariff", req.TariffCode),
			zap.String("voltage_type", s.voltageOf(req)),
			zap.Int("readings", req.Series.Len()),
			zap.Error(err),
		)
		return nil, err
	}
	duration := time.Since(start)
	metrics.ObserveBillRun(bill.TariffCode, metrics.ResultSuccess, duration)
	s.logger.Info("bill calculated",
		zap.String("run_id", bill.RunID),
		zap.String("tariff", bill.TariffCode),
		zap.String("voltage_type", bill.VoltageType),
		zap.Int("readings", bill.Readings),
		zap.Int("charges", len(bill.LineItems)),
		zap.Float64("total", bill.Summary.Total),
		zap.Duration("duration", duration),
	)
	return bill, nil
}

func (s *BillingService) calculate(ctx context.Context, req BillRequest) (*Bill, error) {
	if req.TariffCode == "" {
		return nil, ErrEmptyTariffCode
	}
	voltage := s.voltageOf(req)
	if voltage == "" {
		return nil, billing.ErrEmptyVoltageType
	}
	if req.Series.Len() == 0 {
		return nil, metering.ErrEmptySeries
	}

	def, err := s.catalogue.Get(ctx, req.TariffCode)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, view, err := s.assembler.CalculateTariff(def, req.Series, voltage)
	if err != nil {
		if charge := failedCharge(err); charge != "" {
			metrics.IncChargeEvaluation(charge, metrics.ResultError)
		}
		return nil, err
	}
	for _, item := range items {
		metrics.IncChargeEvaluation(item.Charge, metrics.ResultSuccess)
	}

	first, last := req.Series.Span()
	months := view.DistinctMonths()
	labels := make([]string, len(months))
	for i, m := range months {
		labels[i] = m.String()
	}
	bill := &Bill{
		RunID:        s.newRunID(),
		TariffCode:   def.Code,
		DisplayName:  def.DisplayName,
		VoltageType:  voltage,
		PeriodStart:  first,
		PeriodEnd:    last,
		Months:       labels,
		Readings:     req.Series.Len(),
		LineItems:    items,
		Summary:      billing.Summarize(items, def),
		PowerFactor:  view.PowerFactor(),
		CalculatedAt: s.clock.Now(),
	}

	if s.publisher == nil {
		return bill, nil
	}
	if err := s.publisher.PublishBillCalculated(ctx, BillCalculated{
		RunID:        bill.RunID,
		TariffCode:   bill.TariffCode,
		VoltageType:  bill.VoltageType,
		Readings:     bill.Readings,
		Total:        bill.Summary.Total,
		TotalInclVAT: bill.Summary.TotalInclVAT,
		Currency:     bill.Summary.Currency,
		OccurredAt:   bill.CalculatedAt,
	}); err != nil {
		return nil, fmt.Errorf("billing service: publish: %w", err)
	}
	return bill, nil
}

// Tariffs lists the catalogue.
func (s *BillingService) Tariffs(ctx context.Context) ([]*tariff.Definition, error) {
	return s.catalogue.List(ctx)
}

// Tariff returns one tariff by code.
func (s *BillingService) Tariff(ctx context.Context, code string) (*tariff.Definition, error) {
	if code == "" {
		return nil, ErrEmptyTariffCode
	}
	return s.catalogue.Get(ctx, code)
}

func (s *BillingService) voltageOf(req BillRequest) string {
	if req.VoltageType != "" {
		return req.VoltageType
	}
	return s.defaultVoltage
}

// failedCharge names the charge an evaluator failed on, or "" when the run
// failed before any charge was evaluated.
func failedCharge(err error) string {
	var rateErr *tariff.RateNotFoundError
	if errors.As(err, &rateErr) {
		return rateErr.Charge
	}
	var dataErr *billing.InsufficientDataError
	if errors.As(err, &dataErr) {
		return dataErr.Charge
	}
	return ""
}

// ErrorReason maps a bill run error to a short metric label.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, metering.ErrInvalidReading), errors.Is(err, metering.ErrEmptySeries),
		errors.Is(err, metering.ErrInvalidInterval), errors.Is(err, ErrEmptyTariffCode),
		errors.Is(err, billing.ErrEmptyVoltageType):
		return "validation"
	case errors.Is(err, tariff.ErrTariffNotFound):
		return "tariff_not_found"
	case errors.Is(err, tariff.ErrRateNotFound):
		return "rate_not_found"
	case errors.Is(err, billing.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, tariff.ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
