package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Peer message commands.
const (
	PeerCmdBroadcasting = "broadcasting"
	PeerCmdPK           = "pk"
)

// Channel message commands.
const (
	ChannelCmdSeats   = "seats"
	ChannelCmdPKEvent = "pk-event"
	ChannelCmdLiveEnd = "live-end"
	ChannelCmdOwner   = "owner"
)

// Message is the envelope of every pub/sub message.
type Message struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage decodes a message envelope. A message without cmd is
// malformed.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if m.Cmd == "" {
		return Message{}, fmt.Errorf("%w: missing cmd", ErrMalformedPayload)
	}
	return m, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, field)
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return missing("data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// flag accepts a JSON bool or a 0/1 number.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

type wireUser struct {
	UserID      *string `json:"userId"`
	UserName    string  `json:"userName"`
	UID         *int64  `json:"uid"`
	EnableAudio flag    `json:"enableAudio"`
	EnableVideo flag    `json:"enableVideo"`
	EnableChat  *flag   `json:"enableChat"`
}

func (u *wireUser) role(kind RoleKind) (Role, error) {
	if u == nil {
		return Role{}, missing("user")
	}
	if u.UserID == nil || *u.UserID == "" {
		return Role{}, missing("userId")
	}
	if u.UID == nil {
		return Role{}, missing("uid")
	}

	var perm Permission
	if u.EnableAudio {
		perm = perm.With(PermMic)
	}
	if u.EnableVideo {
		perm = perm.With(PermCamera)
	}
	if u.EnableChat == nil || bool(*u.EnableChat) {
		perm = perm.With(PermChat)
	}

	switch kind {
	case RoleOwner:
		return NewOwner(*u.UserID, u.UserName, *u.UID), nil
	case RoleBroadcaster:
		return NewBroadcaster(*u.UserID, u.UserName, *u.UID, perm), nil
	default:
		return NewAudience(*u.UserID, u.UserName, *u.UID), nil
	}
}

type wireSeat struct {
	Seat *struct {
		No    *int `json:"no"`
		State *int `json:"state"`
	} `json:"seat"`
	User *wireUser `json:"user"`
}

func seatsFromWire(items []wireSeat) ([]Seat, error) {
	seats := make([]Seat, 0, len(items))
	for i, item := range items {
		if item.Seat == nil || item.Seat.No == nil || item.Seat.State == nil {
			return nil, missing(fmt.Sprintf("seat[%d]", i))
		}
		state := SeatState(*item.Seat.State)
		if !state.Valid() {
			return nil, fmt.Errorf("%w: seat %d state %d", ErrMalformedPayload, *item.Seat.No, *item.Seat.State)
		}

		seat := Seat{Index: *item.Seat.No, State: state}
		if state == SeatOccupied {
			occupant, err := item.User.role(RoleBroadcaster)
			if err != nil {
				return nil, fmt.Errorf("seat %d: %w", seat.Index, err)
			}
			seat.Occupant = &occupant
		}
		seats = append(seats, seat)
	}
	if err := NormalizeSeats(seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// ParseSeats decodes a full seat list, sorted ascending by index.
func ParseSeats(data json.RawMessage) ([]Seat, error) {
	var items []wireSeat
	if err := decodeData(data, &items); err != nil {
		return nil, err
	}
	return seatsFromWire(items)
}

// ParseOwner decodes an owner push.
func ParseOwner(data json.RawMessage) (Role, error) {
	var u wireUser
	if err := decodeData(data, &u); err != nil {
		return Role{}, err
	}
	return u.role(RoleOwner)
}

// CoHostNotice is a decoded co-host peer notification. From is the peer
// that caused it, seen as an audience member.
type CoHostNotice struct {
	Operate   Operate
	SeatIndex int
	From      Role
}

// ParseCoHostNotice decodes a "broadcasting" peer message. Unknown codes
// fail with ErrProtocolViolation.
func ParseCoHostNotice(data json.RawMessage) (CoHostNotice, error) {
	var w struct {
		Operate  *int    `json:"operate"`
		Account  *string `json:"account"`
		UserID   *string `json:"userId"`
		AgoraUID *int64  `json:"agoraUid"`
		CoIndex  *int    `json:"coindex"`
	}
	if err := decodeData(data, &w); err != nil {
		return CoHostNotice{}, err
	}
	switch {
	case w.Operate == nil:
		return CoHostNotice{}, missing("operate")
	case w.UserID == nil || *w.UserID == "":
		return CoHostNotice{}, missing("userId")
	case w.Account == nil:
		return CoHostNotice{}, missing("account")
	case w.AgoraUID == nil:
		return CoHostNotice{}, missing("agoraUid")
	}

	op := Operate(*w.Operate)
	if !op.Valid() {
		return CoHostNotice{}, fmt.Errorf("%w: operate %d", ErrProtocolViolation, *w.Operate)
	}

	n := CoHostNotice{
		Operate: op,
		From:    NewAudience(*w.UserID, *w.Account, *w.AgoraUID),
	}
	if op == OperateApplicationReceived || op == OperateInvitationReceived {
		if w.CoIndex == nil {
			return CoHostNotice{}, missing("coindex")
		}
		n.SeatIndex = *w.CoIndex
	}
	return n, nil
}

type wireRoom struct {
	RoomID  *string   `json:"roomId"`
	Channel string    `json:"channel"`
	Owner   *wireUser `json:"owner"`
}

func (w *wireRoom) room() (BattleRoom, error) {
	if w == nil {
		return BattleRoom{}, missing("room")
	}
	if w.RoomID == nil || *w.RoomID == "" {
		return BattleRoom{}, missing("roomId")
	}
	r := BattleRoom{RoomID: *w.RoomID, Channel: w.Channel}
	if w.Owner != nil {
		owner, err := w.Owner.role(RoleOwner)
		if err != nil {
			return BattleRoom{}, fmt.Errorf("owner: %w", err)
		}
		r.Owner = owner
	}
	return r, nil
}

// BattleNotice is a decoded PK peer notification.
type BattleNotice struct {
	Kind     BattlePeerKind
	FromRoom BattleRoom
}

// ParseBattleNotice decodes a "pk" peer message.
func ParseBattleNotice(data json.RawMessage) (BattleNotice, error) {
	var w struct {
		Type     *int      `json:"type"`
		FromRoom *wireRoom `json:"fromRoom"`
	}
	if err := decodeData(data, &w); err != nil {
		return BattleNotice{}, err
	}
	if w.Type == nil {
		return BattleNotice{}, missing("type")
	}
	kind := BattlePeerKind(*w.Type)
	if !kind.Valid() {
		return BattleNotice{}, fmt.Errorf("%w: pk type %d", ErrProtocolViolation, *w.Type)
	}
	room, err := w.FromRoom.room()
	if err != nil {
		return BattleNotice{}, fmt.Errorf("fromRoom: %w", err)
	}
	return BattleNotice{Kind: kind, FromRoom: room}, nil
}

// BattleUpdate is a decoded pk-event payload. Event is the optional one-shot
// notification; Relay is a relay config carried without an event, as sent
// to a client rejoining a running battle.
type BattleUpdate struct {
	State BattleState
	Event *BattleEvent
	Relay *RelayConfig
}

type wireEndpoint struct {
	UID         *int64  `json:"uid"`
	ChannelName *string `json:"channelName"`
	Token       *string `json:"token"`
}

type wireRelayConfig struct {
	Local  *wireEndpoint `json:"local"`
	Proxy  *wireEndpoint `json:"proxy"`
	Remote *wireEndpoint `json:"remote"`
}

func (w *wireRelayConfig) config() (*RelayConfig, error) {
	switch {
	case w.Local == nil || w.Local.UID == nil || w.Local.ChannelName == nil || w.Local.Token == nil:
		return nil, missing("relayConfig.local")
	case w.Proxy == nil || w.Proxy.UID == nil || w.Proxy.ChannelName == nil || w.Proxy.Token == nil:
		return nil, missing("relayConfig.proxy")
	case w.Remote == nil || w.Remote.UID == nil:
		return nil, missing("relayConfig.remote")
	}
	return &RelayConfig{
		Local:  RelayEndpoint{UID: *w.Local.UID, ChannelName: *w.Local.ChannelName, Token: *w.Local.Token},
		Proxy:  RelayEndpoint{UID: *w.Proxy.UID, ChannelName: *w.Proxy.ChannelName, Token: *w.Proxy.Token},
		Remote: RelayEndpoint{UID: *w.Remote.UID},
	}, nil
}

type wireBattle struct {
	State       *int             `json:"state"`
	Event       *int             `json:"event"`
	Result      json.RawMessage  `json:"result"`
	RelayConfig *wireRelayConfig `json:"relayConfig"`

	RoomID    *string   `json:"roomId"`
	Channel   string    `json:"channel"`
	Owner     *wireUser `json:"owner"`
	StartTime *int64    `json:"startTime"`
	CountDown *int64    `json:"countDown"`

	LocalRank     *int64 `json:"localRank"`
	RemoteRank    *int64 `json:"remoteRank"`
	LocalRoomRank *int64 `json:"localRoomRank"`
}

// remoteRank prefers remoteRank and falls back to the legacy localRoomRank.
func (w *wireBattle) remoteRank() *int64 {
	if w.RemoteRank != nil {
		return w.RemoteRank
	}
	return w.LocalRoomRank
}

func parseResult(raw json.RawMessage) (BattleResult, error) {
	if len(raw) == 0 {
		return 0, missing("result")
	}
	s := string(bytes.TrimSpace(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return ParseBattleResult(s)
}

// ParseBattleUpdate decodes and validates a complete pk-event payload.
// Nothing is returned unless every present part is valid.
func ParseBattleUpdate(data json.RawMessage) (BattleUpdate, error) {
	var w wireBattle
	if err := decodeData(data, &w); err != nil {
		return BattleUpdate{}, err
	}
	var u BattleUpdate

	if w.Event != nil {
		evt := &BattleEvent{Kind: BattleEventKind(*w.Event)}
		switch evt.Kind {
		case BattleEventEnd:
			result, err := parseResult(w.Result)
			if err != nil {
				return BattleUpdate{}, err
			}
			evt.Result = result
		case BattleEventStart:
			if w.RelayConfig == nil {
				return BattleUpdate{}, missing("relayConfig")
			}
			cfg, err := w.RelayConfig.config()
			if err != nil {
				return BattleUpdate{}, err
			}
			evt.Relay = cfg
		case BattleEventRankChanged:
			remote := w.remoteRank()
			if w.LocalRank == nil || remote == nil {
				return BattleUpdate{}, missing("rank")
			}
			evt.LocalScore, evt.RemoteScore = *w.LocalRank, *remote
		default:
			return BattleUpdate{}, fmt.Errorf("%w: pk event %d", ErrProtocolViolation, *w.Event)
		}
		u.Event = evt
	} else if w.RelayConfig != nil {
		cfg, err := w.RelayConfig.config()
		if err != nil {
			return BattleUpdate{}, err
		}
		u.Relay = cfg
	}

	if w.State == nil {
		return BattleUpdate{}, missing("state")
	}
	u.State.Kind = BattleStateKind(*w.State)
	switch u.State.Kind {
	case BattleNone, BattleInviting, BattleBeingInvited:
	case BattleInDuration:
		info, err := w.info()
		if err != nil {
			return BattleUpdate{}, err
		}
		u.State.Info = info
	default:
		return BattleUpdate{}, fmt.Errorf("%w: pk state %d", ErrProtocolViolation, *w.State)
	}
	return u, nil
}

func (w *wireBattle) info() (*BattleInfo, error) {
	if w.Owner == nil {
		return nil, missing("owner")
	}
	room, err := (&wireRoom{RoomID: w.RoomID, Channel: w.Channel, Owner: w.Owner}).room()
	if err != nil {
		return nil, err
	}
	remote := w.remoteRank()
	switch {
	case w.StartTime == nil:
		return nil, missing("startTime")
	case w.CountDown == nil:
		return nil, missing("countDown")
	case w.LocalRank == nil || remote == nil:
		return nil, missing("rank")
	}
	return &BattleInfo{
		RemoteRoom:  room,
		StartTime:   time.UnixMilli(*w.StartTime),
		Countdown:   time.Duration(*w.CountDown) * time.Millisecond,
		LocalScore:  *w.LocalRank,
		RemoteScore: *remote,
	}, nil
}

// JoinSnapshot is the room state returned when joining a live room.
type JoinSnapshot struct {
	Local   Role
	Owner   Role
	Channel string
	Seats   []Seat
	Battle  *BattleUpdate
}

// ParseJoinSnapshot decodes the live-join response. The local user's kind is
// derived: owner by identity, broadcaster when seated, audience otherwise.
func ParseJoinSnapshot(data json.RawMessage) (JoinSnapshot, error) {
	var w struct {
		User *wireUser `json:"user"`
		Room *struct {
			Owner        *wireUser       `json:"owner"`
			ChannelName  *string         `json:"channelName"`
			CoVideoSeats []wireSeat      `json:"coVideoSeats"`
			PK           json.RawMessage `json:"pk"`
		} `json:"room"`
	}
	if err := decodeData(data, &w); err != nil {
		return JoinSnapshot{}, err
	}
	if w.Room == nil {
		return JoinSnapshot{}, missing("room")
	}
	if w.Room.ChannelName == nil {
		return JoinSnapshot{}, missing("channelName")
	}

	owner, err := w.Room.Owner.role(RoleOwner)
	if err != nil {
		return JoinSnapshot{}, fmt.Errorf("owner: %w", err)
	}
	seats, err := seatsFromWire(w.Room.CoVideoSeats)
	if err != nil {
		return JoinSnapshot{}, err
	}

	local, err := w.User.role(RoleAudience)
	if err != nil {
		return JoinSnapshot{}, fmt.Errorf("user: %w", err)
	}
	switch {
	case local.UserID == owner.UserID:
		local = NewOwner(local.UserID, local.Name, local.UID)
	case occupies(seats, local.UserID):
		local = local.AsBroadcaster()
	}

	snap := JoinSnapshot{
		Local:   local,
		Owner:   owner,
		Channel: *w.Room.ChannelName,
		Seats:   seats,
	}
	if len(w.Room.PK) > 0 && string(w.Room.PK) != "null" {
		update, err := ParseBattleUpdate(w.Room.PK)
		if err != nil {
			return JoinSnapshot{}, fmt.Errorf("pk: %w", err)
		}
		snap.Battle = &update
	}
	return snap, nil
}

func occupies(seats []Seat, userID string) bool {
	for _, s := range seats {
		if s.Occupant != nil && s.Occupant.UserID == userID {
			return true
		}
	}
	return false
}
