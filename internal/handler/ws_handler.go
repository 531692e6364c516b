package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/hub"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler streams room events over websocket connections.
type WSHandler struct {
	hub    *hub.Hub
	config config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{hub: h, config: cfg}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and subscribes it to the events
// of the room named by the room_id query parameter.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.Ctx(c.Request.Context())

	roomID := c.Query("room_id")
	if roomID == "" {
		response.BadRequest(c, "room_id is required")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn, roomID, h.config)
	h.hub.Register(client)
	l.Info().Str("client_id", client.ID).Str(pkglog.FieldRoomID, roomID).Msg("event stream opened")

	go client.WritePump()
	go client.ReadPump()
}
