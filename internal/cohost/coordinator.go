// Package cohost coordinates seat invitations and applications between the
// room owner and candidates. Pending requests live in two expiring queues;
// the seat itself only changes when the seat registry receives a push.
package cohost

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/observer"
	"github.com/weiawesome/wes-io-live/internal/queue"
	"github.com/weiawesome/wes-io-live/internal/session"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Event kinds published by the coordinator.
const (
	EventReceivedApplication   = "receivedApplication"
	EventReceivedInvitation    = "receivedInvitation"
	EventApplicationByRejected = "applicationByRejected"
	EventInvitationByRejected  = "invitationByRejected"
	EventApplicationByAccepted = "applicationByAccepted"
	EventInvitationByAccepted  = "invitationByAccepted"
)

// Event is a co-host notification for the presentation layer.
type Event struct {
	Kind        string              `json:"kind"`
	Invitation  *domain.Invitation  `json:"invitation,omitempty"`
	Application *domain.Application `json:"application,omitempty"`
}

// Config configures a coordinator.
type Config struct {
	QueueMax       int
	QueueTTL       time.Duration
	TickInterval   time.Duration
	AssertProtocol bool // panic on unknown codes instead of logging them
}

// Coordinator runs the invitation and application lifecycles of one room.
// It is confined to the room's coordination loop; operations may be called
// from any goroutine and complete through the returned channel.
type Coordinator struct {
	sess       *session.Session
	ex         transport.Executor
	dispatcher transport.Dispatcher
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger

	invitations  *queue.Queue[domain.Invitation]
	applications *queue.Queue[domain.Application]

	events   observer.Subject[Event]
	inviting observer.Subject[[]domain.Role]
	applying observer.Subject[[]domain.Role]
	cancel   func()
}

// Option customises a coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now for request timestamps and queue expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator for the room described by sess.
func New(sess *session.Session, ex transport.Executor, d transport.Dispatcher, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		sess:       sess,
		ex:         ex,
		dispatcher: d,
		cfg:        cfg,
		now:        time.Now,
		logger:     log.Component("cohost").With().Str(log.FieldRoomID, sess.RoomID).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	qcfg := func(name string) queue.Config {
		return queue.Config{Name: name, Max: cfg.QueueMax, TTL: cfg.QueueTTL, TickInterval: cfg.TickInterval}
	}
	c.invitations = queue.New[domain.Invitation](ex, qcfg("invitations"), queue.WithClock(c.now))
	c.applications = queue.New[domain.Application](ex, qcfg("applications"), queue.WithClock(c.now))

	c.invitations.Subscribe(func(items []domain.Invitation) { c.inviting.Publish(receivers(items)) })
	c.applications.Subscribe(func(items []domain.Application) { c.applying.Publish(initiators(items)) })
	return c
}

// Start listens for co-host peer notifications on ch.
func (c *Coordinator) Start(ch transport.Channel) {
	c.cancel = ch.OnPeerMessage(c.handle)
}

// Close stops listening, stops both queue tickers and drops every
// subscriber.
func (c *Coordinator) Close() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.invitations.Close()
	c.applications.Close()
	c.events.Clear()
	c.inviting.Clear()
	c.applying.Clear()
}

func receivers(items []domain.Invitation) []domain.Role {
	out := make([]domain.Role, 0, len(items))
	for _, it := range items {
		out = append(out, it.Receiver)
	}
	return out
}

func initiators(items []domain.Application) []domain.Role {
	out := make([]domain.Role, 0, len(items))
	for _, it := range items {
		out = append(out, it.Initiator)
	}
	return out
}

func (c *Coordinator) Invitations() []domain.Invitation   { return c.invitations.Items() }
func (c *Coordinator) Applications() []domain.Application { return c.applications.Items() }

// InvitingUsers lists the receivers of pending invitations.
func (c *Coordinator) InvitingUsers() []domain.Role { return receivers(c.invitations.Items()) }

// ApplyingUsers lists the initiators of pending applications.
func (c *Coordinator) ApplyingUsers() []domain.Role { return initiators(c.applications.Items()) }

func (c *Coordinator) SubscribeEvents(fn func(Event)) func() { return c.events.Subscribe(fn) }

func (c *Coordinator) SubscribeInvitingUsers(fn func([]domain.Role)) func() {
	return c.inviting.Subscribe(fn)
}

func (c *Coordinator) SubscribeApplyingUsers(fn func([]domain.Role)) func() {
	return c.applying.Subscribe(fn)
}

func (c *Coordinator) SubscribeInvitations(fn func([]domain.Invitation)) func() {
	return c.invitations.Subscribe(fn)
}

func (c *Coordinator) SubscribeApplications(fn func([]domain.Application)) func() {
	return c.applications.Subscribe(fn)
}

func (c *Coordinator) requireOwner() error {
	if !c.sess.LocalIsOwner() {
		return domain.ErrNotOwner
	}
	return nil
}

func (c *Coordinator) requireKind(kind domain.RoleKind) error {
	if c.sess.Local.Kind != kind || c.sess.LocalIsOwner() {
		return domain.ErrRoleMismatch
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, prepare func() (transport.Command, error), then func(json.RawMessage) error) <-chan error {
	return transport.Dispatch(ctx, c.ex, c.dispatcher, prepare, then)
}

// SendInvitation invites receiver to seatIndex. The invitation is queued
// once the server accepts the command.
func (c *Coordinator) SendInvitation(ctx context.Context, seatIndex int, receiver domain.Role) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireOwner(); err != nil {
			return transport.Command{}, err
		}
		if receiver.UserID == "" || receiver.UserID == c.sess.Local.UserID {
			return transport.Command{}, domain.ErrRoleMismatch
		}
		if c.invitations.Contains(domain.InvitationID(c.sess.Local.UserID, receiver.UserID)) {
			return transport.Command{}, domain.ErrAlreadyPending
		}
		if c.invitations.Full() {
			return transport.Command{}, domain.ErrQueueFull
		}
		return transport.CoHostAction(c.sess.RoomID, receiver.UserID, seatIndex, domain.ActionInvite), nil
	}, func(json.RawMessage) error {
		inv := domain.Invitation{
			SeatIndex: seatIndex,
			Initiator: c.sess.Local,
			Receiver:  receiver,
			CreatedAt: c.now(),
		}
		c.logger.Info().Str(log.FieldUserID, receiver.UserID).Int(log.FieldSeatIndex, seatIndex).Msg("invitation sent")
		return ignoreDuplicate(c.invitations.Append(inv))
	})
}

// AcceptApplication seats the applicant and drops the application.
func (c *Coordinator) AcceptApplication(ctx context.Context, app domain.Application) <-chan error {
	return c.answerApplication(ctx, app, domain.ActionOwnerAccept)
}

// RejectApplication turns the applicant down and drops the application.
func (c *Coordinator) RejectApplication(ctx context.Context, app domain.Application) <-chan error {
	return c.answerApplication(ctx, app, domain.ActionOwnerReject)
}

func (c *Coordinator) answerApplication(ctx context.Context, app domain.Application, action domain.CoHostAction) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireOwner(); err != nil {
			return transport.Command{}, err
		}
		return transport.CoHostAction(c.sess.RoomID, app.Initiator.UserID, app.SeatIndex, action), nil
	}, func(json.RawMessage) error {
		c.applications.Remove(app.ID())
		return nil
	})
}

// ForceEndBroadcasting removes user from seatIndex.
func (c *Coordinator) ForceEndBroadcasting(ctx context.Context, user domain.Role, seatIndex int) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireOwner(); err != nil {
			return transport.Command{}, err
		}
		c.logger.Info().Str(log.FieldUserID, user.UserID).Int(log.FieldSeatIndex, seatIndex).Msg("force end broadcasting")
		return transport.CoHostAction(c.sess.RoomID, user.UserID, seatIndex, domain.ActionForceEnd), nil
	}, nil)
}

// EndBroadcasting leaves seatIndex as a broadcaster. An empty user means
// the local user.
func (c *Coordinator) EndBroadcasting(ctx context.Context, seatIndex int, user domain.Role) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireKind(domain.RoleBroadcaster); err != nil {
			return transport.Command{}, err
		}
		if user.UserID == "" {
			user = c.sess.Local
		}
		return transport.CoHostAction(c.sess.RoomID, user.UserID, seatIndex, domain.ActionSelfEnd), nil
	}, nil)
}

// SendApplication applies to the owner for seatIndex. The application is
// queued once the server accepts the command.
func (c *Coordinator) SendApplication(ctx context.Context, seatIndex int) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireKind(domain.RoleAudience); err != nil {
			return transport.Command{}, err
		}
		if c.applications.Contains(domain.ApplicationID(c.sess.Local.UserID, c.sess.Owner.UserID)) {
			return transport.Command{}, domain.ErrAlreadyPending
		}
		if c.applications.Full() {
			return transport.Command{}, domain.ErrQueueFull
		}
		return transport.CoHostAction(c.sess.RoomID, c.sess.Local.UserID, seatIndex, domain.ActionApply), nil
	}, func(json.RawMessage) error {
		app := domain.Application{
			SeatIndex: seatIndex,
			Initiator: c.sess.Local,
			Receiver:  c.sess.Owner,
			CreatedAt: c.now(),
		}
		c.logger.Info().Int(log.FieldSeatIndex, seatIndex).Msg("application sent")
		return ignoreDuplicate(c.applications.Append(app))
	})
}

// AcceptInvitation takes the offered seat and drops the invitation.
func (c *Coordinator) AcceptInvitation(ctx context.Context, inv domain.Invitation) <-chan error {
	return c.answerInvitation(ctx, inv, domain.ActionAudienceAccept)
}

// RejectInvitation declines the offered seat and drops the invitation.
func (c *Coordinator) RejectInvitation(ctx context.Context, inv domain.Invitation) <-chan error {
	return c.answerInvitation(ctx, inv, domain.ActionAudienceReject)
}

func (c *Coordinator) answerInvitation(ctx context.Context, inv domain.Invitation, action domain.CoHostAction) <-chan error {
	return c.dispatch(ctx, func() (transport.Command, error) {
		if err := c.requireKind(domain.RoleAudience); err != nil {
			return transport.Command{}, err
		}
		return transport.CoHostAction(c.sess.RoomID, inv.Initiator.UserID, inv.SeatIndex, action), nil
	}, func(json.RawMessage) error {
		c.invitations.Remove(inv.ID())
		return nil
	})
}

// FindInvitation returns the pending invitation sent by initiatorID to the
// local user.
func (c *Coordinator) FindInvitation(initiatorID string) (domain.Invitation, bool) {
	return c.invitations.Get(domain.InvitationID(initiatorID, c.sess.Local.UserID))
}

// FindApplication returns the pending application sent by initiatorID to
// the local user.
func (c *Coordinator) FindApplication(initiatorID string) (domain.Application, bool) {
	return c.applications.Get(domain.ApplicationID(initiatorID, c.sess.Local.UserID))
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, domain.ErrDuplicate) {
		return nil
	}
	return err
}
