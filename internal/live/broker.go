// Package live fans check-in updates out to connected dashboard streams on
// this replica.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEventChanged = "event_changed"
	TypeCheckedIn    = "checked_in"
)

type Update struct {
	Type        string    `json:"type"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	Method      string    `json:"method,omitempty"`
	CheckedInAt time.Time `json:"checked_in_at,omitzero"`
}

// Broker keeps per-event subscriber channels. Slow subscribers miss
// updates instead of blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[chan Update]struct{}
	buf    int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: map[uuid.UUID]map[chan Update]struct{}{}, buf: buffer}
}

// Subscribe returns a channel of updates for eventID and a function that
// unsubscribes and closes it. After Close the channel is already closed.
func (b *Broker) Subscribe(eventID uuid.UUID) (<-chan Update, func()) {
	ch := make(chan Update, b.buf)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subs[eventID]
	if !ok {
		set = map[chan Update]struct{}{}
		b.subs[eventID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[eventID][ch]; !ok {
			return
		}
		delete(b.subs[eventID], ch)
		if len(b.subs[eventID]) == 0 {
			delete(b.subs, eventID)
		}
		close(ch)
	}
}

// Close ends every subscription so open streams can finish.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = map[uuid.UUID]map[chan Update]struct{}{}
	b.closed = true
}

func (b *Broker) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[u.EventID] {
		select {
		case ch <- u:
		default:
		}
	}
}

func (b *Broker) PublishEventChanged(_ context.Context, eventID uuid.UUID) error {
	b.Publish(Update{Type: TypeEventChanged, EventID: eventID})
	return nil
}

func (b *Broker) PublishCheckIn(_ context.Context, eventID, userID uuid.UUID, method string, at time.Time) error {
	b.Publish(Update{
		Type:        TypeCheckedIn,
		EventID:     eventID,
		UserID:      userID,
		Method:      method,
		CheckedInAt: at,
	})
	return nil
}
