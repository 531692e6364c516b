package pubsub

import "fmt"

// Channel naming conventions. Every channel has four colon separated parts
// {prefix}:{scope}:{id}:{suffix} so that drivers without wildcard channels
// can map it onto a topic and a key.
const (
	// Room broadcast channel: seat snapshots, battle pushes, owner changes.
	ChannelRoom = "live:room:%s:channel"

	// Point-to-point channel addressed to a single user.
	ChannelPeer = "live:user:%s:peer"

	// Coordinator -> media relay requests.
	ChannelRelayToMedia = "relay:room:%s:to_media"
)

// Event types for relay requests.
const (
	EventStartRelay = "start_relay"
	EventStopRelay  = "stop_relay"
)

// RoomChannel returns the broadcast channel of a room.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoom, roomID)
}

// PeerChannel returns the point-to-point channel of a user.
func PeerChannel(userID string) string {
	return fmt.Sprintf(ChannelPeer, userID)
}

// RelayToMediaChannel returns the channel relay requests for a room go to.
func RelayToMediaChannel(roomID string) string {
	return fmt.Sprintf(ChannelRelayToMedia, roomID)
}

// RelayEndpoint identifies one side of a media relay.
type RelayEndpoint struct {
	UID         int64  `json:"uid"`
	ChannelName string `json:"channel_name,omitempty"`
	Token       string `json:"token,omitempty"`
}

// StartRelayPayload asks the media plane to start relaying between rooms.
type StartRelayPayload struct {
	RoomID string        `json:"room_id"`
	Local  RelayEndpoint `json:"local"`
	Proxy  RelayEndpoint `json:"proxy"`
	Remote RelayEndpoint `json:"remote"`
}

// StopRelayPayload asks the media plane to stop an active relay.
type StopRelayPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"` // "battle_end", "leave"
}
