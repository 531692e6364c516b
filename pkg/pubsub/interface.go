package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Subscribe and SubscribePattern after Close.
var ErrClosed = errors.New("pubsub closed")

// Event is the envelope carried on every channel. On room and peer channels
// Type is the inbound command ("seats", "pk-event", "broadcasting", "pk")
// and Payload its data object; on relay channels Type is one of the relay
// event types.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into a new event stamped with the current time.
// A nil payload leaves Payload empty.
func NewEvent(eventType, roomID string, payload interface{}) (*Event, error) {
	if eventType == "" {
		return nil, errors.New("event type is required")
	}
	e := &Event{Type: eventType, RoomID: roomID, Timestamp: time.Now()}
	if payload == nil {
		return e, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	e.Payload = data
	return e, nil
}

// UnmarshalPayload decodes the payload into v. An event without a payload
// leaves v untouched.
func (e *Event) UnmarshalPayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Publisher is all the relay control path needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber delivers events on buffered channels. A subscriber that falls
// behind loses events rather than blocking the driver. Subscribing twice to
// the same key replaces the first subscription, and Unsubscribe takes the
// same key that was passed to Subscribe or SubscribePattern.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

// PubSub is a driver: Redis, Kafka or NATS.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
