package handler

// SeatStateRequest changes the state of a seat.
type SeatStateRequest struct {
	State *int `json:"state" binding:"required"`
}

// InviteRequest invites a user to a seat.
type InviteRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Name      string `json:"name"`
	UID       int64  `json:"uid"`
	SeatIndex int    `json:"seat_index" binding:"required,min=1"`
}

// ApplyRequest applies for a seat.
type ApplyRequest struct {
	SeatIndex int `json:"seat_index" binding:"required,min=1"`
}

// ForceEndRequest removes a broadcaster from a seat.
type ForceEndRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// BattleInviteRequest invites another room to a battle.
type BattleInviteRequest struct {
	RoomID  string `json:"room_id" binding:"required"`
	Channel string `json:"channel"`
	OwnerID string `json:"owner_id"`
}
