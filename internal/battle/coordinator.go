// Package battle runs the PK negotiation between two rooms and drives the
// media relay while a battle is in duration.
package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/observer"
	"github.com/weiawesome/wes-io-live/internal/session"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Relay reasons sent to the media side.
const (
	ReasonBattleEnd = "battle_end"
	ReasonLeave     = "leave"
	ReasonRestart   = "restart"
)

// Relay is the exclusive media relay shared by every room.
type Relay interface {
	Start(ctx context.Context, roomID string, cfg domain.RelayConfig) error
	Restart(ctx context.Context, roomID string, cfg domain.RelayConfig) error
	Stop(ctx context.Context, roomID string, reason string) error
}

type Config struct {
	AssertProtocol bool
	RelayTimeout   time.Duration
}

// Coordinator holds the battle state of one room. It is confined to the
// room's coordination loop.
type Coordinator struct {
	sess       *session.Session
	ex         transport.Executor
	dispatcher transport.Dispatcher
	relay      Relay
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger

	state    domain.BattleState
	syncedAt time.Time
	relaying *domain.RelayConfig

	states  observer.Subject[domain.BattleState]
	events  observer.Subject[domain.BattleEvent]
	notices observer.Subject[domain.BattleNotice]
	cancels []func()
}

type Option func(*Coordinator)

// WithClock replaces time.Now for countdown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(sess *session.Session, ex transport.Executor, d transport.Dispatcher, relay Relay, cfg Config, opts ...Option) *Coordinator {
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = 5 * time.Second
	}
	c := &Coordinator{
		sess:       sess,
		ex:         ex,
		dispatcher: d,
		relay:      relay,
		cfg:        cfg,
		now:        time.Now,
		logger:     log.Component("battle").With().Str(log.FieldRoomID, sess.RoomID).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start listens for pk peer notices and pk-event pushes on ch.
func (c *Coordinator) Start(ch transport.Channel) {
	c.cancels = append(c.cancels,
		ch.OnPeerMessage(c.handlePeer),
		ch.OnChannelMessage(c.handleChannel),
	)
}

// Close stops listening and drops every subscriber. The relay is left to
// StopRelay.
func (c *Coordinator) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.states.Clear()
	c.events.Clear()
	c.notices.Clear()
}

func (c *Coordinator) State() domain.BattleState { return c.state }

// RelayConfig returns the relay this room is running.
func (c *Coordinator) RelayConfig() (domain.RelayConfig, bool) {
	if c.relaying == nil {
		return domain.RelayConfig{}, false
	}
	return *c.relaying, true
}

// Remaining returns the battle time left at now: the last countdown pushed
// by the server minus the time elapsed since that push, never negative.
func (c *Coordinator) Remaining(now time.Time) time.Duration {
	if c.state.Kind != domain.BattleInDuration || c.state.Info == nil {
		return 0
	}
	left := c.state.Info.Countdown - now.Sub(c.syncedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Coordinator) SubscribeStates(fn func(domain.BattleState)) func() {
	return c.states.Subscribe(fn)
}

func (c *Coordinator) SubscribeEvents(fn func(domain.BattleEvent)) func() {
	return c.events.Subscribe(fn)
}

func (c *Coordinator) SubscribeNotices(fn func(domain.BattleNotice)) func() {
	return c.notices.Subscribe(fn)
}

// SendInvitationTo invites the owner of room to a battle. State changes
// arrive with the next pk-event push.
func (c *Coordinator) SendInvitationTo(ctx context.Context, room domain.BattleRoom) <-chan error {
	return c.send(ctx, room.RoomID, domain.BattleActionInvite)
}

// Accept accepts a battle the local room was invited to.
func (c *Coordinator) Accept(ctx context.Context, b domain.Battle) <-chan error {
	return c.send(ctx, b.InitiatorRoom, domain.BattleActionAccept)
}

// Reject declines a battle the local room was invited to.
func (c *Coordinator) Reject(ctx context.Context, b domain.Battle) <-chan error {
	return c.send(ctx, b.InitiatorRoom, domain.BattleActionReject)
}

func (c *Coordinator) send(ctx context.Context, target string, action domain.BattleAction) <-chan error {
	return transport.Dispatch(ctx, c.ex, c.dispatcher, func() (transport.Command, error) {
		if !c.sess.LocalIsOwner() {
			return transport.Command{}, domain.ErrNotOwner
		}
		if target == "" || target == c.sess.RoomID {
			return transport.Command{}, fmt.Errorf("%w: battle target %q", domain.ErrRoleMismatch, target)
		}
		c.logger.Info().Str("target_room", target).Int("action", int(action)).Msg("battle action")
		return transport.BattleAction(c.sess.RoomID, target, action), nil
	}, nil)
}

// Apply applies a validated pk-event: the optional one-shot event first,
// then the durable state.
func (c *Coordinator) Apply(u domain.BattleUpdate) {
	if u.Event != nil {
		c.applyEvent(*u.Event)
	} else if u.Relay != nil {
		c.resumeRelay(*u.Relay)
	}

	prev := c.state.Kind
	c.state = u.State
	c.syncedAt = c.now()
	if prev == domain.BattleInDuration && u.State.Kind != domain.BattleInDuration && c.relaying != nil {
		c.StopRelay(ReasonBattleEnd)
	}
	if prev != u.State.Kind {
		c.logger.Info().Stringer("from", prev).Stringer("to", u.State.Kind).Msg("battle state changed")
	}
	c.states.Publish(c.state)
	if u.Event != nil {
		c.events.Publish(*u.Event)
	}
}

func (c *Coordinator) applyEvent(e domain.BattleEvent) {
	switch e.Kind {
	case domain.BattleEventStart:
		if c.sess.LocalIsOwner() && e.Relay != nil {
			c.startRelay(*e.Relay)
		}
	case domain.BattleEventEnd:
		c.logger.Info().Stringer("result", e.Result).Msg("battle ended")
		if c.sess.LocalIsOwner() {
			c.StopRelay(ReasonBattleEnd)
		}
	case domain.BattleEventRankChanged:
		c.logger.Debug().Int64("local", e.LocalScore).Int64("remote", e.RemoteScore).Msg("battle rank changed")
	}
}

// resumeRelay handles a relay config sent without an event, as on rejoining
// a running battle.
func (c *Coordinator) resumeRelay(cfg domain.RelayConfig) {
	if !c.sess.LocalIsOwner() {
		return
	}
	if c.relaying == nil {
		c.startRelay(cfg)
		return
	}
	if *c.relaying == cfg {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RelayTimeout)
	defer cancel()
	if err := c.relay.Restart(ctx, c.sess.RoomID, cfg); err != nil {
		c.logger.Error().Err(err).Msg("relay restart failed")
		c.relaying = nil
		return
	}
	c.relaying = &cfg
}

func (c *Coordinator) startRelay(cfg domain.RelayConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RelayTimeout)
	defer cancel()
	if err := c.relay.Start(ctx, c.sess.RoomID, cfg); err != nil {
		l := c.logger.Error()
		if errors.Is(err, domain.ErrRelayBusy) {
			l = c.logger.Warn()
		}
		l.Err(err).Msg("relay start failed")
		return
	}
	c.relaying = &cfg
}

// StopRelay stops the relay this room runs, if any.
func (c *Coordinator) StopRelay(reason string) {
	if c.relaying == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RelayTimeout)
	defer cancel()
	if err := c.relay.Stop(ctx, c.sess.RoomID, reason); err != nil {
		c.logger.Error().Err(err).Str("reason", reason).Msg("relay stop failed")
		return
	}
	c.relaying = nil
}

func (c *Coordinator) handleChannel(msg domain.Message) {
	if msg.Cmd != domain.ChannelCmdPKEvent {
		return
	}
	u, err := domain.ParseBattleUpdate(msg.Data)
	if err != nil {
		c.reject(msg.Cmd, err)
		return
	}
	c.Apply(u)
}

func (c *Coordinator) handlePeer(msg domain.Message) {
	if msg.Cmd != domain.PeerCmdPK {
		return
	}
	n, err := domain.ParseBattleNotice(msg.Data)
	if err != nil {
		c.reject(msg.Cmd, err)
		return
	}
	c.logger.Info().Int("type", int(n.Kind)).Str("from_room", n.FromRoom.RoomID).Msg("battle notice")
	c.notices.Publish(n)
}

func (c *Coordinator) reject(cmd string, err error) {
	if errors.Is(err, domain.ErrProtocolViolation) {
		c.logger.Error().Err(err).Str(log.FieldCmd, cmd).Msg("battle protocol violation")
		if c.cfg.AssertProtocol {
			panic(err)
		}
		return
	}
	c.logger.Warn().Err(err).Str(log.FieldCmd, cmd).Msg("malformed battle message dropped")
}
