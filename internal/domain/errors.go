package domain

import "errors"

var (
	// ErrTransport wraps a command that timed out or came back unsuccessful.
	ErrTransport = errors.New("command transport failure")
	// ErrMalformedPayload marks an inbound message missing a required field.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrProtocolViolation marks an unrecognised command code.
	ErrProtocolViolation = errors.New("protocol violation")

	ErrQueueFull      = errors.New("request queue is full")
	ErrDuplicate      = errors.New("request already queued")
	ErrOutOfOrder     = errors.New("request is older than the queue tail")
	ErrAlreadyPending = errors.New("a request for this user is already pending")
	ErrNoSuchRequest  = errors.New("no pending request from this user")

	ErrNotOwner      = errors.New("only the room owner can do this")
	ErrRoleMismatch  = errors.New("operation not allowed for the current role")
	ErrInvalidSeat   = errors.New("invalid seat")
	ErrRelayBusy     = errors.New("another media relay is active")
	ErrRoomNotJoined = errors.New("room not joined")
	ErrLoopStopped   = errors.New("coordination loop stopped")
)
