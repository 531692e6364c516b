package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/cohost"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/room"
)

type captureProducer struct {
	events []*InteractionEvent
}

func (c *captureProducer) ProduceInteraction(ctx context.Context, event *InteractionEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureProducer) Close() error { return nil }

func TestInteractionFromRoomEvent(t *testing.T) {
	owner := domain.NewOwner("o1", "owen", 1)
	alice := domain.NewAudience("u1", "alice", 11)
	app := &domain.Application{SeatIndex: 3, Initiator: alice, Receiver: owner}

	tests := []struct {
		name   string
		event  room.Event
		want   *InteractionEvent
		mapped bool
	}{
		{
			name:   "application received",
			event:  room.Event{Type: room.EventCoHost, RoomID: "R1", Data: cohost.Event{Kind: cohost.EventReceivedApplication, Application: app}},
			want:   &InteractionEvent{Type: "cohost.receivedApplication", RoomID: "R1", UserID: "o1", Target: "u1", SeatIndex: 3},
			mapped: true,
		},
		{
			name:   "battle end",
			event:  room.Event{Type: room.EventBattleEvent, RoomID: "R1", Data: domain.BattleEvent{Kind: domain.BattleEventEnd, Result: domain.BattleDraw}},
			want:   &InteractionEvent{Type: EventBattleEnd, RoomID: "R1", UserID: "o1", Detail: "draw"},
			mapped: true,
		},
		{
			name:   "battle notice",
			event:  room.Event{Type: room.EventBattleNotice, RoomID: "R1", Data: domain.BattleNotice{Kind: domain.BattlePeerTimeout, FromRoom: domain.BattleRoom{RoomID: "R2"}}},
			want:   &InteractionEvent{Type: EventBattleNotice, RoomID: "R1", UserID: "o1", Target: "R2", Detail: "timeout"},
			mapped: true,
		},
		{
			name:   "role change",
			event:  room.Event{Type: room.EventRoleChanged, RoomID: "R1", Data: room.RoleChange{From: alice, To: alice.AsBroadcaster()}},
			want:   &InteractionEvent{Type: EventRoleChanged, RoomID: "R1", UserID: "o1", Detail: "audience->broadcaster"},
			mapped: true,
		},
		{
			name:   "room ended",
			event:  room.Event{Type: room.EventRoomEnded, RoomID: "R1"},
			want:   &InteractionEvent{Type: EventRoomEnded, RoomID: "R1", UserID: "o1"},
			mapped: true,
		},
		{
			name:  "rank change",
			event: room.Event{Type: room.EventBattleEvent, RoomID: "R1", Data: domain.BattleEvent{Kind: domain.BattleEventRankChanged}},
		},
		{
			name:  "seat list",
			event: room.Event{Type: room.EventSeats, RoomID: "R1", Data: []domain.Seat{{Index: 1}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := InteractionFromRoomEvent(tt.event, "o1")
			require.Equal(t, tt.mapped, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSinkForwardsLifecycleOnly(t *testing.T) {
	p := &captureProducer{}
	s := NewSink(p, "o1")

	s.Publish(room.Event{Type: room.EventSeats, RoomID: "R1", Data: []domain.Seat{}})
	s.Publish(room.Event{Type: room.EventRoomEnded, RoomID: "R1", Timestamp: 42})

	require.Len(t, p.events, 1)
	assert.Equal(t, EventRoomEnded, p.events[0].Type)
	assert.Equal(t, int64(42), p.events[0].Timestamp)
}
