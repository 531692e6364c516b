package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "live:room:R1:channel", RoomChannel("R1"))
	assert.Equal(t, "live:user:U1:peer", PeerChannel("U1"))
	assert.Equal(t, "relay:room:R1:to_media", RelayToMediaChannel("R1"))
}

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{channel: RoomChannel("R1"), topic: "live-channel", key: "R1"},
		{channel: PeerChannel("U7"), topic: "live-peer", key: "U7"},
		{channel: RelayToMediaChannel("R9"), topic: "relay-to-media", key: "R9"},
		{channel: "live:room:R1", wantErr: true},
		{channel: "live:group:R1:channel", wantErr: true},
		{channel: "live:room::channel", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestPatternToTopic(t *testing.T) {
	topic, err := patternToTopic("live:room:*:channel")
	require.NoError(t, err)
	assert.Equal(t, "live-channel", topic)
}

func TestChannelToSubject(t *testing.T) {
	subject, err := channelToSubject("live:room:*:channel")
	require.NoError(t, err)
	assert.Equal(t, "live.room.*.channel", subject)

	_, err = channelToSubject("live.room.R1")
	assert.Error(t, err)
	_, err = channelToSubject("")
	assert.Error(t, err)
}

func TestNewEventRoundTrip(t *testing.T) {
	evt, err := NewEvent(EventStopRelay, "R1", StopRelayPayload{RoomID: "R1", Reason: "leave"})
	require.NoError(t, err)
	assert.Equal(t, EventStopRelay, evt.Type)

	var p StopRelayPayload
	require.NoError(t, evt.UnmarshalPayload(&p))
	assert.Equal(t, "leave", p.Reason)
}

func TestNewPubSubUnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestKafkaConsumerGroup(t *testing.T) {
	k := &KafkaPubSub{config: KafkaConfig{GroupID: "coord"}}
	assert.Equal(t, "coord", k.consumerGroup("live:room:*:channel", ""))
	assert.Equal(t, "coord-live-user-U1-peer", k.consumerGroup("live:user:U1:peer", "U1"))

	k = &KafkaPubSub{}
	assert.Equal(t, "pubsub-default", k.consumerGroup("live:room:*:channel", ""))
}

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   interface{}
		want      string
		wantErr   bool
	}{
		{name: "object", eventType: "seats", payload: []int{1, 2}, want: `[1,2]`},
		{name: "no payload", eventType: "live-end"},
		{name: "missing type", payload: 1, wantErr: true},
		{name: "unmarshalable", eventType: "pk", payload: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := NewEvent(tt.eventType, "R1", tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, evt.Type)
			assert.False(t, evt.Timestamp.IsZero())
			if tt.want == "" {
				assert.Empty(t, evt.Payload)
				return
			}
			assert.JSONEq(t, tt.want, string(evt.Payload))
		})
	}
}

func TestUnmarshalEmptyPayload(t *testing.T) {
	evt, err := NewEvent("live-end", "R1", nil)
	require.NoError(t, err)

	v := map[string]int{"kept": 1}
	require.NoError(t, evt.UnmarshalPayload(&v))
	assert.Equal(t, map[string]int{"kept": 1}, v)
}
