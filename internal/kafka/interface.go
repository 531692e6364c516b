package kafka

import "context"

// InteractionEvent is a co-host, battle or room lifecycle change seen by
// this agent.
type InteractionEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Target    string `json:"target,omitempty"` // counterpart user or room
	SeatIndex int    `json:"seat_index,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Event types
const (
	EventBattleStart  = "battle.start"
	EventBattleEnd    = "battle.end"
	EventBattleNotice = "battle.notice"
	EventRoleChanged  = "role.changed"
	EventRoomEnded    = "room.ended"
	eventCoHostPrefix = "cohost."
)

// InteractionEventProducer defines the interface for producing interaction
// events.
type InteractionEventProducer interface {
	ProduceInteraction(ctx context.Context, event *InteractionEvent) error
	Close() error
}
