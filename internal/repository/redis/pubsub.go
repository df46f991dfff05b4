package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	MsgEventChanged = "event_changed"
	MsgCheckedIn    = "checked_in"
)

// Message is the payload on both channels. Check-in fields are empty for
// event_changed messages.
type Message struct {
	Type        string    `json:"type"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	Method      string    `json:"method,omitempty"`
	CheckedInAt time.Time `json:"checked_in_at,omitzero"`
	TsUnix      int64     `json:"ts_unix"`
}

// EventsPubSub fans event changes and check-ins out to every replica.
type EventsPubSub struct {
	rdb *redis.Client
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{rdb: rdb}
}

func (p *EventsPubSub) PublishEventChanged(ctx context.Context, eventID uuid.UUID) error {
	return p.publish(ctx, ChannelEventsChanged(), Message{
		Type:    MsgEventChanged,
		EventID: eventID,
		TsUnix:  time.Now().Unix(),
	})
}

func (p *EventsPubSub) PublishCheckIn(
	ctx context.Context,
	eventID, userID uuid.UUID,
	method string,
	at time.Time,
) error {
	return p.publish(ctx, ChannelCheckIns(), Message{
		Type:        MsgCheckedIn,
		EventID:     eventID,
		UserID:      userID,
		Method:      method,
		CheckedInAt: at,
		TsUnix:      time.Now().Unix(),
	})
}

func (p *EventsPubSub) publish(ctx context.Context, channel string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisrepo.EventsPubSub.publish: %w", err)
	}

	return p.rdb.Publish(ctx, channel, b).Err()
}

// Subscribe delivers messages from both channels to handler until ctx is
// done. ready, if non-nil, is closed once the server has confirmed the
// subscription.
func (p *EventsPubSub) Subscribe(
	ctx context.Context,
	ready chan<- struct{},
	handler func(ctx context.Context, msg Message),
) error {
	sub := p.rdb.Subscribe(ctx, ChannelEventsChanged(), ChannelCheckIns())
	defer sub.Close()

	for range 2 {
		if _, err := sub.Receive(ctx); err != nil {
			return fmt.Errorf("redisrepo.EventsPubSub.Subscribe: %w", err)
		}
	}

	if ready != nil {
		close(ready)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.EventID != uuid.Nil {
				handler(ctx, msg)
			}
		}
	}
}
