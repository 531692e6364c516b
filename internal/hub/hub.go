package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/room"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

// Hub fans room events out to the websocket clients watching each room.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client // roomID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	quit       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
	logger     zerolog.Logger
}

// RoomMessage is a message to be broadcast to a room.
type RoomMessage struct {
	RoomID  string
	Message []byte
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		quit:       make(chan struct{}),
		config:     cfg,
		logger:     pkglog.Component("hub"),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.rooms[client.RoomID]; !ok {
				h.rooms[client.RoomID] = make(map[string]*Client)
			}
			h.rooms[client.RoomID][client.ID] = client
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.ID).Str(pkglog.FieldRoomID, client.RoomID).Msg("client registered")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.rooms[msg.RoomID] {
				select {
				case client.Send <- msg.Message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.logger.Warn().Str("client_id", client.ID).Msg("client send buffer full, dropping client")
				h.remove(client)
			}

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			h.rooms = make(map[string]map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if roomClients, ok := h.rooms[client.RoomID]; ok {
		delete(roomClients, client.ID)
		if len(roomClients) == 0 {
			delete(h.rooms, client.RoomID)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)
	h.logger.Info().Str("client_id", client.ID).Msg("client unregistered")
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	close(h.quit)
}

// Publish implements room.Sink. It never blocks: when the broadcast queue
// is full the event is dropped.
func (h *Hub) Publish(e room.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Str("type", e.Type).Msg("failed to marshal room event")
		return
	}
	select {
	case h.broadcast <- &RoomMessage{RoomID: e.RoomID, Message: data}:
	default:
		h.logger.Warn().Str("type", e.Type).Str(pkglog.FieldRoomID, e.RoomID).Msg("broadcast queue full, event dropped")
	}
}

// ClientCount returns the number of clients watching roomID.
func (h *Hub) ClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
