package interfaces

import (
	"context"

	"tariff-billing/internal/billing/application"
	"tariff-billing/internal/eventing"
)

// BusPublisher publishes bill calculated events on the in-process bus.
type BusPublisher struct {
	bus *eventing.Bus
}

// NewBusPublisher constructs a bus publisher.
func NewBusPublisher(bus *eventing.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

// PublishBillCalculated publishes the event correlated by run id.
func (p *BusPublisher) PublishBillCalculated(ctx context.Context, event application.BillCalculated) error {
	if p == nil || p.bus == nil {
		return nil
	}
	return p.bus.Publish(ctx, event, eventing.Meta{CorrelationID: event.RunID, OccurredAt: event.OccurredAt})
}

// SubscribeLogging routes bill calculated events on bus to the logging
// publisher.
func SubscribeLogging(bus *eventing.Bus, logging *LoggingPublisher) {
	bus.Subscribe(eventing.EventTypeOf[application.BillCalculated](), "bills.log", func(ctx context.Context, event any) error {
		evt, ok := event.(application.BillCalculated)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		return logging.PublishBillCalculated(ctx, evt)
	})
}
