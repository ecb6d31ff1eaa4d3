// Package events provides an in-process pub/sub bus for broker activity.
// Collaborating renderers (chat adapters, dashboards) subscribe to receive
// the outcome lines of trades that have no waiting HTTP caller, such as
// scheduled queue drains.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of broker activity an event describes.
type EventType string

const (
	// TradeExecuted - a buy or sell produced fill/rejection lines
	TradeExecuted EventType = "trade_executed"
	// OrderQueued - the market was closed and an order joined the queue
	OrderQueued EventType = "order_queued"
	// QueueDrained - the deferred order queue was replayed
	QueueDrained EventType = "queue_drained"
	// PortfolioValued - a valuation was folded into the daily history
	PortfolioValued EventType = "portfolio_valued"
)

// Event is a single broker activity notification.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Lines     []string  `json:"lines,omitempty"`
	Value     float64   `json:"value,omitempty"`
}

// subscriberBuffer bounds each subscriber channel; slow consumers lose
// events rather than blocking the broker.
const subscriberBuffer = 32

// Bus fans events out to all current subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn().
				Int("subscriber", id).
				Str("event_type", string(evt.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the consumer goes away; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
