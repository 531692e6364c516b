package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/cohost"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/room"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

// Sink forwards the lifecycle events of a room to Kafka. Queue snapshots,
// seat lists and battle state pushes are not forwarded.
type Sink struct {
	producer InteractionEventProducer
	userID   string
	logger   zerolog.Logger
}

func NewSink(producer InteractionEventProducer, userID string) *Sink {
	return &Sink{producer: producer, userID: userID, logger: pkglog.Component("kafka")}
}

func (s *Sink) Publish(e room.Event) {
	ev, ok := InteractionFromRoomEvent(e, s.userID)
	if !ok {
		return
	}
	if err := s.producer.ProduceInteraction(context.Background(), ev); err != nil {
		s.logger.Warn().Err(err).Str("type", ev.Type).Str(pkglog.FieldRoomID, e.RoomID).Msg("interaction event dropped")
	}
}

// InteractionFromRoomEvent maps a room event to an interaction event. It
// reports false for events that are not forwarded.
func InteractionFromRoomEvent(e room.Event, userID string) (*InteractionEvent, bool) {
	ev := &InteractionEvent{RoomID: e.RoomID, UserID: userID, Timestamp: e.Timestamp}

	switch data := e.Data.(type) {
	case cohost.Event:
		ev.Type = eventCoHostPrefix + data.Kind
		switch {
		case data.Application != nil:
			ev.Target = counterpart(data.Application.Initiator, data.Application.Receiver, userID)
			ev.SeatIndex = data.Application.SeatIndex
		case data.Invitation != nil:
			ev.Target = counterpart(data.Invitation.Initiator, data.Invitation.Receiver, userID)
			ev.SeatIndex = data.Invitation.SeatIndex
		}

	case domain.BattleEvent:
		switch data.Kind {
		case domain.BattleEventStart:
			ev.Type = EventBattleStart
		case domain.BattleEventEnd:
			ev.Type = EventBattleEnd
			ev.Detail = data.Result.String()
		default:
			return nil, false
		}

	case domain.BattleNotice:
		ev.Type = EventBattleNotice
		ev.Target = data.FromRoom.RoomID
		ev.Detail = data.Kind.String()

	case room.RoleChange:
		ev.Type = EventRoleChanged
		ev.Detail = data.From.Kind.String() + "->" + data.To.Kind.String()

	default:
		if e.Type != room.EventRoomEnded {
			return nil, false
		}
		ev.Type = EventRoomEnded
	}
	return ev, true
}

func counterpart(initiator, receiver domain.Role, userID string) string {
	if initiator.UserID == userID {
		return receiver.UserID
	}
	return initiator.UserID
}
