package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/audit"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/room"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// RoomManager is the room lifecycle the handler drives.
type RoomManager interface {
	Join(ctx context.Context, roomID string) (*room.Room, error)
	Room(roomID string) (*room.Room, error)
	Leave(ctx context.Context, roomID string) error
}

// Handler handles HTTP requests for interaction-service.
type Handler struct {
	rooms   RoomManager
	timeout time.Duration
}

// NewHandler creates a new HTTP handler. timeout bounds how long a request
// waits for a command to complete.
func NewHandler(rooms RoomManager, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Handler{rooms: rooms, timeout: timeout}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms/:id")
		{
			rooms.POST("/join", h.JoinRoom)
			rooms.POST("/leave", h.LeaveRoom)
			rooms.GET("", h.GetState)

			rooms.GET("/seats", h.GetSeats)
			rooms.PUT("/seats/:index", h.UpdateSeat)
			rooms.POST("/seats/:index/force-end", h.ForceEnd)
			rooms.POST("/end", h.EndBroadcasting)

			rooms.POST("/invitations", h.Invite)
			rooms.POST("/invitations/:user/accept", h.AcceptInvitation)
			rooms.POST("/invitations/:user/reject", h.RejectInvitation)
			rooms.POST("/applications", h.Apply)
			rooms.POST("/applications/:user/accept", h.AcceptApplication)
			rooms.POST("/applications/:user/reject", h.RejectApplication)

			rooms.POST("/battle", h.InviteBattle)
			rooms.POST("/battle/:room/accept", h.AcceptBattle)
			rooms.POST("/battle/:room/reject", h.RejectBattle)
		}
	}
}

// JoinRoom joins a room and returns its state.
func (h *Handler) JoinRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	r, err := h.rooms.Join(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to join room")
		writeError(c, err)
		return
	}
	audit.Log(ctx, audit.ActionJoinRoom, roomID, "room joined")

	snap, err := r.Snapshot(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, snap)
}

// LeaveRoom leaves a room.
func (h *Handler) LeaveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if err := h.rooms.Leave(ctx, roomID); err != nil {
		writeError(c, err)
		return
	}
	audit.Log(ctx, audit.ActionLeaveRoom, roomID, "room left")
	response.Success(c, gin.H{"room_id": roomID})
}

// GetState returns the state of the joined room.
func (h *Handler) GetState(c *gin.Context) {
	r, ok := h.room(c)
	if !ok {
		return
	}
	snap, err := r.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, snap)
}

// GetSeats returns the seat list of the joined room.
func (h *Handler) GetSeats(c *gin.Context) {
	r, ok := h.room(c)
	if !ok {
		return
	}
	snap, err := r.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, snap.Seats)
}

// UpdateSeat asks the server to change a seat's state.
func (h *Handler) UpdateSeat(c *gin.Context) {
	index, ok := seatIndex(c)
	if !ok {
		return
	}
	var req SeatStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.run(c, audit.ActionUpdateSeat, strconv.Itoa(index), func(ctx context.Context, r *room.Room) <-chan error {
		return r.UpdateSeat(ctx, domain.SeatState(*req.State), index)
	})
}

// ForceEnd removes a broadcaster from a seat.
func (h *Handler) ForceEnd(c *gin.Context) {
	index, ok := seatIndex(c)
	if !ok {
		return
	}
	var req ForceEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.run(c, audit.ActionForceEnd, req.UserID, func(ctx context.Context, r *room.Room) <-chan error {
		return r.ForceEnd(ctx, req.UserID, index)
	})
}

// EndBroadcasting leaves the local user's seat.
func (h *Handler) EndBroadcasting(c *gin.Context) {
	h.run(c, audit.ActionEndBroadcasting, "", func(ctx context.Context, r *room.Room) <-chan error {
		return r.EndBroadcasting(ctx)
	})
}

// Invite invites a user to a seat.
func (h *Handler) Invite(c *gin.Context) {
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	receiver := domain.NewAudience(req.UserID, req.Name, req.UID)
	h.run(c, audit.ActionInvite, req.UserID, func(ctx context.Context, r *room.Room) <-chan error {
		return r.Invite(ctx, req.SeatIndex, receiver)
	})
}

// Apply applies for a seat.
func (h *Handler) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.run(c, audit.ActionApply, strconv.Itoa(req.SeatIndex), func(ctx context.Context, r *room.Room) <-chan error {
		return r.Apply(ctx, req.SeatIndex)
	})
}

func (h *Handler) AcceptInvitation(c *gin.Context) {
	user := c.Param("user")
	h.run(c, audit.ActionAcceptInvitation, user, func(ctx context.Context, r *room.Room) <-chan error {
		return r.AcceptInvitation(ctx, user)
	})
}

func (h *Handler) RejectInvitation(c *gin.Context) {
	user := c.Param("user")
	h.run(c, audit.ActionRejectInvitation, user, func(ctx context.Context, r *room.Room) <-chan error {
		return r.RejectInvitation(ctx, user)
	})
}

func (h *Handler) AcceptApplication(c *gin.Context) {
	user := c.Param("user")
	h.run(c, audit.ActionAcceptApplication, user, func(ctx context.Context, r *room.Room) <-chan error {
		return r.AcceptApplication(ctx, user)
	})
}

func (h *Handler) RejectApplication(c *gin.Context) {
	user := c.Param("user")
	h.run(c, audit.ActionRejectApplication, user, func(ctx context.Context, r *room.Room) <-chan error {
		return r.RejectApplication(ctx, user)
	})
}

// InviteBattle invites another room to a battle.
func (h *Handler) InviteBattle(c *gin.Context) {
	var req BattleInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	target := domain.BattleRoom{RoomID: req.RoomID, Channel: req.Channel}
	if req.OwnerID != "" {
		target.Owner = domain.NewOwner(req.OwnerID, "", 0)
	}
	h.run(c, audit.ActionBattleInvite, req.RoomID, func(ctx context.Context, r *room.Room) <-chan error {
		return r.InviteBattle(ctx, target)
	})
}

func (h *Handler) AcceptBattle(c *gin.Context) {
	from := c.Param("room")
	h.run(c, audit.ActionBattleAccept, from, func(ctx context.Context, r *room.Room) <-chan error {
		return r.AcceptBattle(ctx, from)
	})
}

func (h *Handler) RejectBattle(c *gin.Context) {
	from := c.Param("room")
	h.run(c, audit.ActionBattleReject, from, func(ctx context.Context, r *room.Room) <-chan error {
		return r.RejectBattle(ctx, from)
	})
}

// run resolves the joined room, starts op and waits for its completion.
func (h *Handler) run(c *gin.Context, action, target string, op func(context.Context, *room.Room) <-chan error) {
	r, ok := h.room(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := await(ctx, op(ctx, r)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("action", action).Msg("operation failed")
		writeError(c, err)
		return
	}
	audit.LogTarget(ctx, action, r.ID(), target, "operation completed")
	response.Success(c, gin.H{"action": action})
}

func (h *Handler) room(c *gin.Context) (*room.Room, bool) {
	r, err := h.rooms.Room(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return r, true
}

func seatIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		response.BadRequest(c, "invalid seat index")
		return 0, false
	}
	return index, true
}
