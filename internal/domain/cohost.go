package domain

import "time"

// CoHostAction is the type of a co-host command sent to the server.
type CoHostAction int

const (
	ActionInvite CoHostAction = iota + 1
	ActionApply
	ActionOwnerReject
	ActionAudienceReject
	ActionOwnerAccept
	ActionAudienceAccept
	ActionForceEnd
	ActionSelfEnd
)

// Operate is the code of a co-host notification delivered peer to peer.
type Operate int

const (
	OperateApplicationReceived Operate = 101
	OperateInvitationReceived  Operate = 102
	OperateApplicationRejected Operate = 103
	OperateInvitationRejected  Operate = 104
	OperateApplicationAccepted Operate = 105
	OperateInvitationAccepted  Operate = 106
)

// Valid reports whether o is a known co-host code.
func (o Operate) Valid() bool {
	return o >= OperateApplicationReceived && o <= OperateInvitationAccepted
}

// Invitation is an owner asking a candidate to take a seat.
type Invitation struct {
	SeatIndex int       `json:"seat_index"`
	Initiator Role      `json:"initiator"`
	Receiver  Role      `json:"receiver"`
	CreatedAt time.Time `json:"created_at"`
}

// ID identifies the invitation by its two parties.
func (i Invitation) ID() string { return InvitationID(i.Initiator.UserID, i.Receiver.UserID) }

// Timestamp returns when the invitation was created.
func (i Invitation) Timestamp() time.Time { return i.CreatedAt }

// Application is a candidate asking the owner for a seat.
type Application struct {
	SeatIndex int       `json:"seat_index"`
	Initiator Role      `json:"initiator"`
	Receiver  Role      `json:"receiver"`
	CreatedAt time.Time `json:"created_at"`
}

// ID identifies the application by its two parties.
func (a Application) ID() string { return ApplicationID(a.Initiator.UserID, a.Receiver.UserID) }

// Timestamp returns when the application was created.
func (a Application) Timestamp() time.Time { return a.CreatedAt }

func InvitationID(initiator, receiver string) string {
	return "inv:" + initiator + ":" + receiver
}

func ApplicationID(initiator, receiver string) string {
	return "app:" + initiator + ":" + receiver
}
