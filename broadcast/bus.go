package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"registration-system/models"
	"registration-system/monitoring"
)

// Bus is a typed publish/subscribe fan-out of ChangeEvent values,
// decoupled from any transport. The WebSocket hub, the PubNub mirror and
// test harnesses all attach through the same Subscribe call.
//
// Delivery is fire-and-forget: every subscriber gets its own buffered
// channel and a subscriber that stops draining is dropped rather than
// allowed to block the others. Events are delivered to each subscriber
// in publish order (FIFO per subscription); category filtering happens
// on the consumer side via ChangeEvent.Matches.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	closed bool
}

type Subscription struct {
	ID       string
	Category string
	C        <-chan models.ChangeEvent

	bus *Bus
	ch  chan models.ChangeEvent
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscribe attaches a new consumer. The category is informational; the
// bus itself delivers every event and leaves filtering to the consumer.
func (b *Bus) Subscribe(category string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.ChangeEvent, b.buffer)
	sub := &Subscription{
		ID:       uuid.NewString(),
		Category: category,
		C:        ch,
		bus:      b,
		ch:       ch,
	}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.ID)
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish fans the event out to every live subscriber. Publishing under
// the lock gives all subscribers the same event order; a full channel
// means the subscriber is too slow and is detached.
func (b *Bus) Publish(event models.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
			monitoring.TrackBroadcast(event.Kind.WireName())
		default:
			slog.Warn("dropping slow broadcast subscriber", "subscription", id, "category", sub.Category)
			monitoring.TrackBroadcastDrop()
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
