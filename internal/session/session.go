// Package session holds the identity context of a joined room. A Session is
// created at join time and handed to every coordinator of that room; it is
// confined to the room's coordination loop.
package session

import "github.com/weiawesome/wes-io-live/internal/domain"

// Session is the local user's view of the joined room.
type Session struct {
	RoomID  string
	Channel string
	Token   string
	Local   domain.Role
	Owner   domain.Role
}

// New returns a session for the given room.
func New(roomID, channel string, local, owner domain.Role) *Session {
	return &Session{RoomID: roomID, Channel: channel, Local: local, Owner: owner}
}

// LocalIsOwner reports whether the local user owns the room.
func (s *Session) LocalIsOwner() bool {
	return s.Local.UserID != "" && s.Local.UserID == s.Owner.UserID
}

// SetLocal replaces the local role and returns the previous one.
func (s *Session) SetLocal(r domain.Role) domain.Role {
	prev := s.Local
	s.Local = r
	return prev
}

// SetOwner replaces the owner. A local owner is never replaced by a push.
func (s *Session) SetOwner(r domain.Role) bool {
	if s.LocalIsOwner() {
		return false
	}
	s.Owner = r
	return true
}
