// Package bus is the local pub/sub channel decoupling the passive
// trackers from the orchestrator: trackers publish canonical events
// without knowing who delivers them.
package bus

import (
	"sync"

	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
)

// Handler consumes a published event. Delivery is synchronous and in
// subscription order.
type Handler func(event.TrackingEvent)

// Bus fans published events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn Handler
}

// New creates an empty bus.
func New() *Bus { return &Bus{} }

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber synchronously.
func (b *Bus) Publish(ev event.TrackingEvent) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
