package monitor

import (
	"sync"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// EventUserActionDetected is the name of the broadcast signal.
const EventUserActionDetected = "user-action-detected"

// Subscriber receives every detected action.
type Subscriber func(domain.DetectedActionEvent)

type subscription struct {
	id int
	fn Subscriber
}

// Bus fans detected actions out to any number of subscribers, synchronously
// and in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is safe.
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to a snapshot of current subscribers, outside the lock.
func (b *Bus) Publish(ev domain.DetectedActionEvent) {
	b.mu.RLock()
	snapshot := make([]Subscriber, len(b.subs))
	for i, s := range b.subs {
		snapshot[i] = s.fn
	}
	b.mu.RUnlock()
	for _, fn := range snapshot {
		fn(ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
