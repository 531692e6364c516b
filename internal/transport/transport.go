// Package transport defines the two external collaborators the coordinators
// talk through: a request dispatcher for commands and a pub/sub channel for
// inbound notifications.
package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
)

// Command names.
const (
	CmdSeatStateChange = "seat-state-change"
	CmdCoHostAction    = "co-host-action"
	CmdBattleAction    = "battle-action"
	CmdLiveJoin        = "live-join"
	CmdLiveLeave       = "live-leave"
)

// Command is a request sent over the request channel.
type Command struct {
	ID      string
	Name    string
	RoomID  string
	UserID  string // target user, for commands addressed to a participant
	Payload interface{}
}

// Dispatcher sends commands and returns the response data. Implementations
// own their retry policy.
type Dispatcher interface {
	Send(ctx context.Context, cmd Command) (json.RawMessage, error)
}

// Handler receives one inbound message.
type Handler func(domain.Message)

// Channel is a pub/sub channel client. Handlers are always invoked on the
// coordination loop of the room that registered them.
type Channel interface {
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context, roomID string) error
	OnPeerMessage(h Handler) (cancel func())
	OnChannelMessage(h Handler) (cancel func())
}

type seatStatePayload struct {
	No     int    `json:"no"`
	State  int    `json:"state"`
	UserID string `json:"userId"`
}

type coHostPayload struct {
	No   int `json:"no"`
	Type int `json:"type"`
}

type battlePayload struct {
	RoomID string `json:"roomId"`
	Type   int    `json:"type"`
}

func newCommand(name, roomID, userID string, payload interface{}) Command {
	return Command{ID: uuid.NewString(), Name: name, RoomID: roomID, UserID: userID, Payload: payload}
}

// SeatStateChange asks the server to move a seat to state.
func SeatStateChange(roomID string, index int, state domain.SeatState, userID string) Command {
	return newCommand(CmdSeatStateChange, roomID, "", seatStatePayload{No: index, State: int(state), UserID: userID})
}

// CoHostAction sends a co-host action about the target user.
func CoHostAction(roomID, targetUserID string, index int, action domain.CoHostAction) Command {
	return newCommand(CmdCoHostAction, roomID, targetUserID, coHostPayload{No: index, Type: int(action)})
}

// BattleAction sends a PK action about the target room.
func BattleAction(roomID, targetRoomID string, action domain.BattleAction) Command {
	return newCommand(CmdBattleAction, roomID, "", battlePayload{RoomID: targetRoomID, Type: int(action)})
}

// LiveJoin enters a room and returns its join snapshot.
func LiveJoin(roomID string) Command {
	return newCommand(CmdLiveJoin, roomID, "", struct{}{})
}

// LiveLeave exits a room.
func LiveLeave(roomID string) Command {
	return newCommand(CmdLiveLeave, roomID, "", struct{}{})
}

// Executor is a coordination loop commands are prepared and completed on.
type Executor interface {
	loop.Poster
	Done() <-chan struct{}
}

// Dispatch runs prepare on the loop, sends the command it builds off the
// loop and runs then on the loop with the response. The returned channel
// receives exactly one value: the first error from prepare, the send or
// then, ErrLoopStopped if the loop exits first, or nil. A nil then
// completes on send success.
func Dispatch(ctx context.Context, ex Executor, d Dispatcher, prepare func() (Command, error), then func(json.RawMessage) error) <-chan error {
	done := make(chan error, 1)
	finished := make(chan struct{})
	var once sync.Once
	complete := func(err error) {
		once.Do(func() {
			done <- err
			close(finished)
		})
	}

	go func() {
		select {
		case <-ex.Done():
			complete(domain.ErrLoopStopped)
		case <-finished:
		}
	}()

	ok := ex.Post(func() {
		cmd, err := prepare()
		if err != nil {
			complete(err)
			return
		}
		go func() {
			resp, err := d.Send(ctx, cmd)
			if err != nil || then == nil {
				complete(err)
				return
			}
			if !ex.Post(func() { complete(then(resp)) }) {
				complete(domain.ErrLoopStopped)
			}
		}()
	})
	if !ok {
		complete(domain.ErrLoopStopped)
	}
	return done
}
