package interfaces

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tariff-billing/internal/billing/application"
)

// LoggingPublisher logs bill calculated events.
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishBillCalculated logs the event.
func (p *LoggingPublisher) PublishBillCalculated(ctx context.Context, event application.BillCalculated) error {
	_ = ctx
	if p == nil {
		return errors.New("bill publisher: nil publisher")
	}
	p.logger.Info("bill calculated event",
		zap.String("run_id", event.RunID),
		zap.String("tariff", event.TariffCode),
		zap.String("voltage_type", event.VoltageType),
		zap.Int("readings", event.Readings),
		zap.Float64("total", event.Total),
		zap.Float64("total_incl_vat", event.TotalInclVAT),
		zap.String("currency", event.Currency),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
