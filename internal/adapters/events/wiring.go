package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/events"
)

// WiringPublisher publishes wiring outcomes on the wiring stream.
type WiringPublisher struct {
	bus events.Bus
}

var _ ports.WiringEvents = (*WiringPublisher)(nil)

func NewWiringPublisher(bus events.Bus) *WiringPublisher {
	return &WiringPublisher{bus: bus}
}

func (p *WiringPublisher) Connected(ctx context.Context, ev ports.WiringEvent) error {
	return p.bus.PublishEvent(ctx, events.SubjectConnected, ev)
}

func (p *WiringPublisher) Failed(ctx context.Context, ev ports.WiringEvent) error {
	return p.bus.PublishEvent(ctx, events.SubjectFailed, ev)
}

func (p *WiringPublisher) Close() error {
	return p.bus.Close()
}

// WiringHandler receives one decoded wiring event.
type WiringHandler func(ctx context.Context, subject string, ev ports.WiringEvent) error

// SubscribeWiring delivers every wiring event on the bus to handler.
// Messages that do not decode are acked and dropped.
func SubscribeWiring(bus events.Bus, handler WiringHandler) (events.Subscription, error) {
	return bus.Subscribe(events.SubjectWiring, func(ctx context.Context, msg events.Message) error {
		var ev ports.WiringEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			_ = msg.Ack()
			return fmt.Errorf("decode wiring event: %w", err)
		}
		if err := handler(ctx, msg.Subject(), ev); err != nil {
			return err
		}
		return msg.Ack()
	})
}

// Noop drops every event. Used when no bus is configured.
type Noop struct{}

var _ ports.WiringEvents = Noop{}

func (Noop) Connected(context.Context, ports.WiringEvent) error { return nil }
func (Noop) Failed(context.Context, ports.WiringEvent) error { return nil }
func (Noop) Close() error { return nil }
