package room

import (
	"time"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

// Event types streamed to observers of a joined room.
const (
	EventSeats         = "seats"
	EventInvitations   = "invitations"
	EventApplications  = "applications"
	EventInvitingUsers = "inviting_users"
	EventApplyingUsers = "applying_users"
	EventCoHost        = "cohost"
	EventBattleState   = "battle_state"
	EventBattleEvent   = "battle_event"
	EventBattleNotice  = "battle_notice"
	EventRoleChanged   = "role_changed"
	EventOwnerChanged  = "owner_changed"
	EventRoomEnded     = "room_ended"
)

// Event is a state change of a joined room.
type Event struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newEvent(eventType, roomID string, data interface{}) Event {
	return Event{Type: eventType, RoomID: roomID, Data: data, Timestamp: time.Now().UnixMilli()}
}

// RoleChange is the data of a role_changed event.
type RoleChange struct {
	From domain.Role `json:"from"`
	To   domain.Role `json:"to"`
}

// Sink receives room events. Publish is called on the room's loop and must
// not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Sinks fans an event out to several sinks.
type Sinks []Sink

func (s Sinks) Publish(e Event) {
	for _, sink := range s {
		sink.Publish(e)
	}
}
