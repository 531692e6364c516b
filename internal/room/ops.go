package room

import (
	"context"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

func failed(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}

// UpdateSeat asks the server to move seat index to state.
func (r *Room) UpdateSeat(ctx context.Context, state domain.SeatState, index int) <-chan error {
	return r.seats.Update(ctx, state, index)
}

func (r *Room) Invite(ctx context.Context, seatIndex int, receiver domain.Role) <-chan error {
	return r.cohost.SendInvitation(ctx, seatIndex, receiver)
}

func (r *Room) Apply(ctx context.Context, seatIndex int) <-chan error {
	return r.cohost.SendApplication(ctx, seatIndex)
}

// AcceptApplication accepts the pending application from userID.
func (r *Room) AcceptApplication(ctx context.Context, userID string) <-chan error {
	app, err := r.findApplication(ctx, userID)
	if err != nil {
		return failed(err)
	}
	return r.cohost.AcceptApplication(ctx, app)
}

// RejectApplication rejects the pending application from userID.
func (r *Room) RejectApplication(ctx context.Context, userID string) <-chan error {
	app, err := r.findApplication(ctx, userID)
	if err != nil {
		return failed(err)
	}
	return r.cohost.RejectApplication(ctx, app)
}

// AcceptInvitation accepts the pending invitation from userID.
func (r *Room) AcceptInvitation(ctx context.Context, userID string) <-chan error {
	inv, err := r.findInvitation(ctx, userID)
	if err != nil {
		return failed(err)
	}
	return r.cohost.AcceptInvitation(ctx, inv)
}

// RejectInvitation rejects the pending invitation from userID.
func (r *Room) RejectInvitation(ctx context.Context, userID string) <-chan error {
	inv, err := r.findInvitation(ctx, userID)
	if err != nil {
		return failed(err)
	}
	return r.cohost.RejectInvitation(ctx, inv)
}

// ForceEnd removes the broadcaster userID from seatIndex.
func (r *Room) ForceEnd(ctx context.Context, userID string, seatIndex int) <-chan error {
	var user domain.Role
	if err := r.loop.Call(ctx, func() {
		if s, ok := r.seats.Seat(seatIndex); ok && s.Occupant != nil && s.Occupant.UserID == userID {
			user = *s.Occupant
			return
		}
		user = domain.NewBroadcaster(userID, "", 0, 0)
	}); err != nil {
		return failed(err)
	}
	return r.cohost.ForceEndBroadcasting(ctx, user, seatIndex)
}

// EndBroadcasting leaves the local user's seat.
func (r *Room) EndBroadcasting(ctx context.Context) <-chan error {
	var index int
	if err := r.loop.Call(ctx, func() {
		if s, ok := r.seats.SeatOf(r.sess.Local.UserID); ok {
			index = s.Index
		}
	}); err != nil {
		return failed(err)
	}
	if index == 0 {
		return failed(domain.ErrInvalidSeat)
	}
	return r.cohost.EndBroadcasting(ctx, index, domain.Role{})
}

func (r *Room) InviteBattle(ctx context.Context, target domain.BattleRoom) <-chan error {
	return r.battle.SendInvitationTo(ctx, target)
}

// AcceptBattle accepts the battle fromRoomID invited this room to.
func (r *Room) AcceptBattle(ctx context.Context, fromRoomID string) <-chan error {
	return r.battle.Accept(ctx, domain.NewBattle(fromRoomID, r.id))
}

// RejectBattle declines the battle fromRoomID invited this room to.
func (r *Room) RejectBattle(ctx context.Context, fromRoomID string) <-chan error {
	return r.battle.Reject(ctx, domain.NewBattle(fromRoomID, r.id))
}

func (r *Room) findApplication(ctx context.Context, userID string) (domain.Application, error) {
	var (
		app domain.Application
		ok  bool
	)
	if err := r.loop.Call(ctx, func() { app, ok = r.cohost.FindApplication(userID) }); err != nil {
		return app, err
	}
	if !ok {
		return app, domain.ErrNoSuchRequest
	}
	return app, nil
}

func (r *Room) findInvitation(ctx context.Context, userID string) (domain.Invitation, error) {
	var (
		inv domain.Invitation
		ok  bool
	)
	if err := r.loop.Call(ctx, func() { inv, ok = r.cohost.FindInvitation(userID) }); err != nil {
		return inv, err
	}
	if !ok {
		return inv, domain.ErrNoSuchRequest
	}
	return inv, nil
}
