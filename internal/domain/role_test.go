package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleTransitionsReturnNewValues(t *testing.T) {
	audience := NewAudience("u1", "alice", 11)
	broadcaster := audience.AsBroadcaster()

	assert.Equal(t, RoleAudience, audience.Kind)
	assert.Equal(t, Permission(0), audience.Permission)

	assert.Equal(t, RoleBroadcaster, broadcaster.Kind)
	assert.True(t, broadcaster.Permission.Has(PermCamera|PermMic))
	assert.Equal(t, audience.UserID, broadcaster.UserID)
	assert.Equal(t, audience.UID, broadcaster.UID)

	back := broadcaster.AsAudience()
	assert.Equal(t, RoleAudience, back.Kind)
	assert.False(t, back.Permission.Has(PermCamera))
	assert.False(t, back.Permission.Has(PermMic))
	assert.Equal(t, RoleBroadcaster, broadcaster.Kind)
}

func TestPermissionBits(t *testing.T) {
	p := PermChat.With(PermMic)
	assert.True(t, p.Has(PermChat))
	assert.True(t, p.Has(PermMic))
	assert.False(t, p.Has(PermCamera))
	assert.False(t, p.Has(PermMic|PermCamera))
	assert.Equal(t, PermChat, p.Without(PermMic))
	assert.Equal(t, Permission(7), NewOwner("o", "owner", 1).Permission)
}

func TestNormalizeSeats(t *testing.T) {
	seats := []Seat{{Index: 3}, {Index: 1}, {Index: 2}}
	assert.NoError(t, NormalizeSeats(seats))
	assert.Equal(t, []int{1, 2, 3}, []int{seats[0].Index, seats[1].Index, seats[2].Index})

	assert.ErrorIs(t, NormalizeSeats([]Seat{{Index: 2}, {Index: 2}}), ErrMalformedPayload)
	assert.ErrorIs(t, NormalizeSeats([]Seat{{Index: 0}}), ErrMalformedPayload)
}

func TestRequestIdentity(t *testing.T) {
	inv := Invitation{SeatIndex: 2, Initiator: NewOwner("o", "", 1), Receiver: NewAudience("u", "", 2)}
	app := Application{SeatIndex: 2, Initiator: NewAudience("u", "", 2), Receiver: NewOwner("o", "", 1)}

	assert.Equal(t, InvitationID("o", "u"), inv.ID())
	assert.Equal(t, ApplicationID("u", "o"), app.ID())
	assert.NotEqual(t, inv.ID(), app.ID())
}
