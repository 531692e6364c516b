package cohost

import (
	"errors"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

func (c *Coordinator) handle(msg domain.Message) {
	if msg.Cmd != domain.PeerCmdBroadcasting {
		return
	}

	n, err := domain.ParseCoHostNotice(msg.Data)
	if err != nil {
		c.reject(msg.Cmd, err)
		return
	}

	l := c.logger.With().Int(log.FieldOperate, int(n.Operate)).Str(log.FieldUserID, n.From.UserID).Logger()

	ownerSide := n.Operate == domain.OperateApplicationReceived ||
		n.Operate == domain.OperateInvitationRejected ||
		n.Operate == domain.OperateInvitationAccepted
	if ownerSide != c.sess.LocalIsOwner() {
		l.Warn().Stringer("role", c.sess.Local.Kind).Msg("co-host notice for another role dropped")
		return
	}

	local := c.sess.Local
	switch n.Operate {
	case domain.OperateApplicationReceived:
		app := domain.Application{SeatIndex: n.SeatIndex, Initiator: n.From, Receiver: local, CreatedAt: c.now()}
		if err := c.applications.Append(app); err != nil {
			l.Warn().Err(err).Msg("received application not queued")
		}
		c.events.Publish(Event{Kind: EventReceivedApplication, Application: &app})

	case domain.OperateInvitationReceived:
		inv := domain.Invitation{SeatIndex: n.SeatIndex, Initiator: c.inviter(n.From), Receiver: local, CreatedAt: c.now()}
		if err := c.invitations.Append(inv); err != nil {
			l.Warn().Err(err).Msg("received invitation not queued")
		}
		c.events.Publish(Event{Kind: EventReceivedInvitation, Invitation: &inv})

	case domain.OperateApplicationRejected, domain.OperateApplicationAccepted:
		app := c.takeApplication(local, n.From)
		kind := EventApplicationByRejected
		if n.Operate == domain.OperateApplicationAccepted {
			kind = EventApplicationByAccepted
		}
		c.events.Publish(Event{Kind: kind, Application: &app})

	case domain.OperateInvitationRejected, domain.OperateInvitationAccepted:
		inv := c.takeInvitation(local, n.From)
		kind := EventInvitationByRejected
		if n.Operate == domain.OperateInvitationAccepted {
			kind = EventInvitationByAccepted
		}
		c.events.Publish(Event{Kind: kind, Invitation: &inv})
	}
	l.Debug().Msg("co-host notice handled")
}

// reject logs a message that could not be used. Unknown codes panic when
// protocol assertions are enabled.
func (c *Coordinator) reject(cmd string, err error) {
	if errors.Is(err, domain.ErrProtocolViolation) {
		c.logger.Error().Err(err).Str(log.FieldCmd, cmd).Msg("co-host protocol violation")
		if c.cfg.AssertProtocol {
			panic(err)
		}
		return
	}
	c.logger.Warn().Err(err).Str(log.FieldCmd, cmd).Msg("malformed co-host notice dropped")
}

// inviter resolves the sender of an invitation, preferring the room owner
// known to the session.
func (c *Coordinator) inviter(from domain.Role) domain.Role {
	if from.UserID == c.sess.Owner.UserID {
		return c.sess.Owner
	}
	owner := from
	owner.Kind = domain.RoleOwner
	return owner
}

// takeApplication dequeues the local user's application to owner and
// returns it. A stale confirmation finds nothing and yields a reconstructed
// application.
func (c *Coordinator) takeApplication(local, owner domain.Role) domain.Application {
	id := domain.ApplicationID(local.UserID, owner.UserID)
	app, ok := c.applications.Get(id)
	if !ok {
		app = domain.Application{Initiator: local, Receiver: owner}
	}
	c.applications.Remove(id)
	return app
}

// takeInvitation dequeues the local owner's invitation to receiver.
func (c *Coordinator) takeInvitation(local, receiver domain.Role) domain.Invitation {
	id := domain.InvitationID(local.UserID, receiver.UserID)
	inv, ok := c.invitations.Get(id)
	if !ok {
		inv = domain.Invitation{Initiator: local, Receiver: receiver}
	}
	c.invitations.Remove(id)
	return inv
}
