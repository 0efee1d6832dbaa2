// Package broadcast fans out payout notices to live subscribers.
package broadcast

import (
	"sync"

	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const defaultBuffer = 16

// Event is one notice delivered to subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscription is a subscriber's receive side. C is closed on Unsubscribe or
// when the broadcaster closes.
type Subscription struct {
	id uint64
	C  <-chan Event
}

// Broadcaster delivers each published event to every open subscription.
// Delivery never blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
	closed bool
}

// New creates a broadcaster whose subscriptions buffer up to buffer events.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe opens a subscription. Past events are not replayed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch}
	}

	b.nextID++
	b.subs[b.nextID] = ch
	logrus.Debugf("broadcast subscriber %d joined (%d open)", b.nextID, len(b.subs))
	return &Subscription{id: b.nextID, C: ch}
}

// Unsubscribe closes the subscription. Calling it twice is harmless.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber with room in its buffer and
// returns how many received it.
func (b *Broadcaster) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for id, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			metrics.BroadcastDropped.Inc()
			logrus.Warnf("broadcast subscriber %d is full, dropped %s event", id, ev.Type)
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
