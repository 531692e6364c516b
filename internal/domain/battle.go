package domain

import (
	"fmt"
	"time"
)

// BattleStateKind is the durable state of a room's PK negotiation.
type BattleStateKind int

const (
	BattleNone BattleStateKind = iota
	BattleInviting
	BattleBeingInvited
	BattleInDuration
)

func (k BattleStateKind) String() string {
	switch k {
	case BattleNone:
		return "none"
	case BattleInviting:
		return "inviting"
	case BattleBeingInvited:
		return "being_invited"
	case BattleInDuration:
		return "in_duration"
	default:
		return fmt.Sprintf("battle_state(%d)", int(k))
	}
}

func (k BattleStateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// BattleRoom is the room on the other side of a battle.
type BattleRoom struct {
	RoomID  string `json:"room_id"`
	Channel string `json:"channel"`
	Owner   Role   `json:"owner"`
}

// BattleInfo describes a running battle. Countdown is the remaining time as
// reported by the server with the push that carried it.
type BattleInfo struct {
	RemoteRoom  BattleRoom    `json:"remote_room"`
	StartTime   time.Time     `json:"start_time"`
	Countdown   time.Duration `json:"countdown"`
	LocalScore  int64         `json:"local_score"`
	RemoteScore int64         `json:"remote_score"`
}

// BattleState is the durable battle state. Info is set only while the
// battle is in duration.
type BattleState struct {
	Kind BattleStateKind `json:"kind"`
	Info *BattleInfo     `json:"info,omitempty"`
}

// Battle pairs two rooms.
type Battle struct {
	ID            string `json:"id"`
	InitiatorRoom string `json:"initiator_room"`
	ReceiverRoom  string `json:"receiver_room"`
}

// NewBattle pairs initiatorRoom with receiverRoom.
func NewBattle(initiatorRoom, receiverRoom string) Battle {
	return Battle{ID: "pk:" + initiatorRoom + ":" + receiverRoom, InitiatorRoom: initiatorRoom, ReceiverRoom: receiverRoom}
}

// BattleResult is the outcome of a battle from the local room's view.
type BattleResult int

const (
	BattleWin BattleResult = iota
	BattleDraw
	BattleLose
)

func (r BattleResult) Valid() bool { return r >= BattleWin && r <= BattleLose }

func (r BattleResult) String() string {
	switch r {
	case BattleWin:
		return "win"
	case BattleDraw:
		return "draw"
	case BattleLose:
		return "lose"
	default:
		return fmt.Sprintf("battle_result(%d)", int(r))
	}
}

func (r BattleResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseBattleResult accepts the numeric wire code or the result name.
func ParseBattleResult(s string) (BattleResult, error) {
	switch s {
	case "win", "0":
		return BattleWin, nil
	case "draw", "1":
		return BattleDraw, nil
	case "lose", "2":
		return BattleLose, nil
	}
	return 0, fmt.Errorf("%w: battle result %q", ErrMalformedPayload, s)
}

// BattleEventKind is a one-shot notification carried next to the state.
type BattleEventKind int

const (
	BattleEventEnd BattleEventKind = iota
	BattleEventStart
	BattleEventRankChanged
)

func (k BattleEventKind) String() string {
	switch k {
	case BattleEventEnd:
		return "end"
	case BattleEventStart:
		return "start"
	case BattleEventRankChanged:
		return "rank_changed"
	default:
		return fmt.Sprintf("battle_event(%d)", int(k))
	}
}

func (k BattleEventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// BattleEvent is a decoded one-shot battle notification.
type BattleEvent struct {
	Kind        BattleEventKind `json:"kind"`
	Result      BattleResult    `json:"result"`
	Relay       *RelayConfig    `json:"relay,omitempty"`
	LocalScore  int64           `json:"local_score"`
	RemoteScore int64           `json:"remote_score"`
}

// RelayEndpoint is one side of a media relay.
type RelayEndpoint struct {
	UID         int64  `json:"uid"`
	ChannelName string `json:"channel_name,omitempty"`
	Token       string `json:"token,omitempty"`
}

// RelayConfig is the credential triplet needed to relay the local stream
// into the remote room's channel. Two configs are the same relay iff they
// compare equal.
type RelayConfig struct {
	Local  RelayEndpoint `json:"local"`
	Proxy  RelayEndpoint `json:"proxy"`
	Remote RelayEndpoint `json:"remote"`
}

// BattlePeerKind is the type of a PK notification delivered peer to peer.
type BattlePeerKind int

const (
	BattlePeerInvited BattlePeerKind = iota + 1
	BattlePeerAccepted
	BattlePeerRejected
	BattlePeerTimeout
)

func (k BattlePeerKind) Valid() bool { return k >= BattlePeerInvited && k <= BattlePeerTimeout }

func (k BattlePeerKind) String() string {
	switch k {
	case BattlePeerInvited:
		return "invited"
	case BattlePeerAccepted:
		return "accepted"
	case BattlePeerRejected:
		return "rejected"
	case BattlePeerTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("battle_peer(%d)", int(k))
	}
}

// BattleAction is the type of a battle command sent to the server.
type BattleAction int

const (
	BattleActionInvite BattleAction = iota + 1
	BattleActionAccept
	BattleActionReject
)
