package domain

import "fmt"

// RoleKind is the kind of participant in a room.
type RoleKind int

const (
	RoleOwner RoleKind = iota + 1
	RoleBroadcaster
	RoleAudience
)

func (k RoleKind) String() string {
	switch k {
	case RoleOwner:
		return "owner"
	case RoleBroadcaster:
		return "broadcaster"
	case RoleAudience:
		return "audience"
	default:
		return fmt.Sprintf("role(%d)", int(k))
	}
}

// MarshalText renders the kind by name in API responses.
func (k RoleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Permission is a set of media and chat capabilities.
type Permission uint8

const (
	PermCamera Permission = 1 << iota
	PermMic
	PermChat
)

// Has reports whether every bit of q is set.
func (p Permission) Has(q Permission) bool { return p&q == q }

// With returns p with q added.
func (p Permission) With(q Permission) Permission { return p | q }

// Without returns p with q cleared.
func (p Permission) Without(q Permission) Permission { return p &^ q }

// Role is a participant together with its kind. Roles are values: a kind
// transition returns a new Role and leaves the receiver untouched.
type Role struct {
	Kind       RoleKind   `json:"kind"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Permission Permission `json:"permission"`
	UID        int64      `json:"uid"`
}

// NewOwner returns an owner role with every permission.
func NewOwner(userID, name string, uid int64) Role {
	return Role{Kind: RoleOwner, UserID: userID, Name: name, Permission: PermCamera | PermMic | PermChat, UID: uid}
}

// NewBroadcaster returns a broadcaster role with the given permissions.
func NewBroadcaster(userID, name string, uid int64, perm Permission) Role {
	return Role{Kind: RoleBroadcaster, UserID: userID, Name: name, Permission: perm, UID: uid}
}

// NewAudience returns an audience role. Audience members hold no media
// permissions.
func NewAudience(userID, name string, uid int64) Role {
	return Role{Kind: RoleAudience, UserID: userID, Name: name, UID: uid}
}

// AsBroadcaster returns a broadcaster copy of r granted camera and mic.
func (r Role) AsBroadcaster() Role {
	r.Kind = RoleBroadcaster
	r.Permission = r.Permission.With(PermCamera | PermMic)
	return r
}

// AsAudience returns an audience copy of r with camera and mic revoked.
func (r Role) AsAudience() Role {
	r.Kind = RoleAudience
	r.Permission = r.Permission.Without(PermCamera | PermMic)
	return r
}

func (r Role) IsOwner() bool       { return r.Kind == RoleOwner }
func (r Role) IsBroadcaster() bool { return r.Kind == RoleBroadcaster }
func (r Role) IsAudience() bool    { return r.Kind == RoleAudience }
