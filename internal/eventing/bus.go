package eventing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidEventType is returned by handlers given an unexpected payload.
var ErrInvalidEventType = errors.New("eventing: invalid event type")

// Handler consumes one event. The envelope is available through
// EnvelopeFromContext.
type Handler func(ctx context.Context, event any) error

type subscription struct {
	consumer string
	handler  Handler
}

// Bus is a synchronous in-process event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers handler for eventType under a consumer name.
func (b *Bus) Subscribe(eventType, consumer string, handler Handler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], subscription{consumer: consumer, handler: handler})
}

// Publish wraps event in an envelope and delivers it to every subscriber in
// registration order. Every handler runs; their errors are joined.
func (b *Bus) Publish(ctx context.Context, event any, meta Meta) error {
	if b == nil {
		return nil
	}
	env, err := BuildEnvelope(event, meta)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[env.EventType]...)
	b.mu.RUnlock()

	ctx = WithEnvelope(ctx, env)
	var errs []error
	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("eventing: consumer %s: %w", sub.consumer, err))
		}
	}
	return errors.Join(errs...)
}
