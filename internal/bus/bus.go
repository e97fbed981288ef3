// Package bus fans medium events out to collaborators such as visualizers
// and recorders.
package bus

import (
	"context"
	"reflect"

	"github.com/cskr/pubsub"

	"github.com/signalsfoundry/directional-radio-medium/core"
	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
)

// Topics carried by the bus, one per observable medium event.
const (
	TopicAntenna     = "antenna"
	TopicConnections = "connections"
	TopicSignal      = "signal"
)

// DefaultCapacity is the per-subscriber channel buffer.
const DefaultCapacity = 128

type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

// Message is what subscribers receive for a medium event.
type Message struct {
	Tick  uint64
	Event core.Event
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger logging.Logger
}

// New returns a bus with the given per-subscriber buffer; capacity <= 0
// selects DefaultCapacity.
func New(capacity int, logger logging.Logger) *PubSubBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug(context.Background(), "publish", logging.String("topic", topic), logging.String("payload_type", payloadType(msg)))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug(context.Background(), "subscribe", logging.Any("topics", topics))
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug(context.Background(), "unsubscribe", logging.String("mode", "all"))
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug(context.Background(), "unsubscribe", logging.Any("topics", topics))
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

// TopicFor maps a medium event to its topic.
func TopicFor(ev core.Event) string {
	switch ev.Kind {
	case core.EventAntennaChanged:
		return TopicAntenna
	case core.EventConnectionsChanged:
		return TopicConnections
	default:
		return TopicSignal
	}
}

// PublishEvents publishes the events drained after one tick, in order.
// It has the shape of a core.TickListener.
func PublishEvents(b MessageBus, tick uint64, events []core.Event) {
	for _, ev := range events {
		b.Publish(TopicFor(ev), Message{Tick: tick, Event: ev})
	}
}

// TickListener adapts PublishEvents for SimulationEngine.RegisterTickListener.
func TickListener(b MessageBus) core.TickListener {
	return func(_ context.Context, tick uint64, events []core.Event) {
		PublishEvents(b, tick, events)
	}
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
