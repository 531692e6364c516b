package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/room"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(config.WebSocketConfig{})
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func newTestClient(h *Hub, id, roomID string, buffer int) *Client {
	return &Client{ID: id, RoomID: roomID, Hub: h, Send: make(chan []byte, buffer)}
}

func receive(t *testing.T, c *Client) room.Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var e room.Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return room.Event{}
	}
}

func TestPublishReachesRoomClientsOnly(t *testing.T) {
	h := startHub(t)
	a := newTestClient(h, "a", "R1", 4)
	b := newTestClient(h, "b", "R2", 4)
	h.Register(a)
	h.Register(b)

	h.Publish(room.Event{Type: room.EventSeats, RoomID: "R1"})

	e := receive(t, a)
	assert.Equal(t, room.EventSeats, e.Type)
	assert.Equal(t, "R1", e.RoomID)

	h.Publish(room.Event{Type: room.EventRoomEnded, RoomID: "R2"})
	assert.Equal(t, room.EventRoomEnded, receive(t, b).Type)
	assert.Empty(t, a.Send)
}

func TestUnregister(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, "a", "R1", 4)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount("R1") == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	h.Unregister(c)

	require.Eventually(t, func() bool { return h.ClientCount("R1") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, "slow", "R1", 1)
	h.Register(c)

	h.Publish(room.Event{Type: room.EventSeats, RoomID: "R1"})
	h.Publish(room.Event{Type: room.EventSeats, RoomID: "R1"})

	require.Eventually(t, func() bool { return h.ClientCount("R1") == 0 }, time.Second, 5*time.Millisecond)
}
