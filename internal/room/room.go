// Package room ties the coordinators of one joined room to its loop,
// channel and event sinks, and keeps the single active room of the agent.
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/battle"
	"github.com/weiawesome/wes-io-live/internal/cohost"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/seat"
	"github.com/weiawesome/wes-io-live/internal/session"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// ChannelFactory creates the channel client a room listens on. Deliveries
// must be posted onto poster.
type ChannelFactory func(poster loop.Poster) transport.Channel

// Deps are the collaborators shared by every room.
type Deps struct {
	Dispatcher transport.Dispatcher
	Channels   ChannelFactory
	Relay      battle.Relay
	Sink       Sink
	CoHost     cohost.Config
	Battle     battle.Config
	LoopBuffer int
	Now        func() time.Time
}

// Room is a joined live room.
type Room struct {
	id         string
	loop       *loop.Loop
	sess       *session.Session
	dispatcher transport.Dispatcher
	channel    transport.Channel
	sink       Sink
	now        func() time.Time
	logger     zerolog.Logger

	seats  *seat.Registry
	cohost *cohost.Coordinator
	battle *battle.Coordinator

	cancels   []func()
	onEnd     func(*Room)
	leaveOnce sync.Once
	leaveErr  error
}

// Join enters roomID: it fetches the join snapshot, builds the room's
// coordinators on a fresh loop and joins the room channel.
func Join(ctx context.Context, deps Deps, roomID string) (*Room, error) {
	return join(ctx, deps, roomID, nil)
}

func join(ctx context.Context, deps Deps, roomID string, onEnd func(*Room)) (*Room, error) {
	resp, err := deps.Dispatcher.Send(ctx, transport.LiveJoin(roomID))
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}
	snap, err := domain.ParseJoinSnapshot(resp)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}
	return open(ctx, deps, roomID, snap, onEnd)
}

func open(ctx context.Context, deps Deps, roomID string, snap domain.JoinSnapshot, onEnd func(*Room)) (*Room, error) {
	if deps.Sink == nil {
		deps.Sink = Sinks(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	l := loop.New(deps.LoopBuffer)
	go l.Run()

	r := &Room{
		id:         roomID,
		loop:       l,
		sess:       session.New(roomID, snap.Channel, snap.Local, snap.Owner),
		dispatcher: deps.Dispatcher,
		channel:    deps.Channels(l),
		sink:       deps.Sink,
		now:        deps.Now,
		onEnd:      onEnd,
		logger:     log.Component("room").With().Str(log.FieldRoomID, roomID).Logger(),
	}

	var buildErr error
	if err := l.Call(ctx, func() { buildErr = r.build(deps, snap) }); err != nil {
		l.Stop()
		return nil, err
	}
	if buildErr != nil {
		l.Stop()
		return nil, fmt.Errorf("join room %s: %w", roomID, buildErr)
	}

	if err := r.channel.Join(ctx, roomID); err != nil {
		r.teardown(context.Background())
		return nil, fmt.Errorf("join channel %s: %w", roomID, err)
	}

	r.logger.Info().
		Str(log.FieldUserID, snap.Local.UserID).
		Stringer("role", snap.Local.Kind).
		Int("seats", len(snap.Seats)).
		Msg("room joined")
	return r, nil
}

// build runs on the loop.
func (r *Room) build(deps Deps, snap domain.JoinSnapshot) error {
	seats, err := seat.NewRegistry(r.sess, r.loop, deps.Dispatcher, snap.Seats)
	if err != nil {
		return err
	}
	r.seats = seats
	r.cohost = cohost.New(r.sess, r.loop, deps.Dispatcher, deps.CoHost, cohost.WithClock(deps.Now))
	r.battle = battle.New(r.sess, r.loop, deps.Dispatcher, deps.Relay, deps.Battle, battle.WithClock(deps.Now))
	if snap.Battle != nil {
		r.battle.Apply(*snap.Battle)
	}

	r.cancels = append(r.cancels,
		r.seats.Subscribe(r.onSeats),
		r.cohost.SubscribeEvents(func(e cohost.Event) { r.emit(EventCoHost, e) }),
		r.cohost.SubscribeInvitations(func(v []domain.Invitation) { r.emit(EventInvitations, v) }),
		r.cohost.SubscribeApplications(func(v []domain.Application) { r.emit(EventApplications, v) }),
		r.cohost.SubscribeInvitingUsers(func(v []domain.Role) { r.emit(EventInvitingUsers, v) }),
		r.cohost.SubscribeApplyingUsers(func(v []domain.Role) { r.emit(EventApplyingUsers, v) }),
		r.battle.SubscribeStates(func(v domain.BattleState) { r.emit(EventBattleState, v) }),
		r.battle.SubscribeEvents(func(v domain.BattleEvent) { r.emit(EventBattleEvent, v) }),
		r.battle.SubscribeNotices(func(v domain.BattleNotice) { r.emit(EventBattleNotice, v) }),
	)

	r.seats.Start(r.channel)
	r.cohost.Start(r.channel)
	r.battle.Start(r.channel)
	r.cancels = append(r.cancels, r.channel.OnChannelMessage(r.handle))
	return nil
}

func (r *Room) emit(eventType string, data interface{}) {
	r.sink.Publish(newEvent(eventType, r.id, data))
}

// onSeats moves the local user between audience and broadcaster as seat
// pushes seat or unseat them. The owner never changes kind.
func (r *Room) onSeats(seats []domain.Seat) {
	r.emit(EventSeats, seats)

	local := r.sess.Local
	if r.sess.LocalIsOwner() {
		return
	}
	_, seated := r.seats.SeatOf(local.UserID)
	var next domain.Role
	switch {
	case seated && local.IsAudience():
		next = local.AsBroadcaster()
	case !seated && local.IsBroadcaster():
		next = local.AsAudience()
	default:
		return
	}
	r.sess.SetLocal(next)
	r.logger.Info().Stringer("from", local.Kind).Stringer("to", next.Kind).Msg("local role changed")
	r.emit(EventRoleChanged, RoleChange{From: local, To: next})
}

func (r *Room) handle(msg domain.Message) {
	switch msg.Cmd {
	case domain.ChannelCmdOwner:
		owner, err := domain.ParseOwner(msg.Data)
		if err != nil {
			r.logger.Warn().Err(err).Str(log.FieldCmd, msg.Cmd).Msg("malformed owner push dropped")
			return
		}
		if r.sess.SetOwner(owner) {
			r.emit(EventOwnerChanged, owner)
		}

	case domain.ChannelCmdLiveEnd:
		r.logger.Info().Msg("live ended")
		r.emit(EventRoomEnded, nil)
		if r.onEnd != nil {
			go r.onEnd(r)
		}
	}
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room's loop has stopped.
func (r *Room) Done() <-chan struct{} { return r.loop.Done() }

// Snapshot is a consistent view of a joined room.
type Snapshot struct {
	RoomID        string               `json:"room_id"`
	Channel       string               `json:"channel"`
	Local         domain.Role          `json:"local"`
	Owner         domain.Role          `json:"owner"`
	Seats         []domain.Seat        `json:"seats"`
	Invitations   []domain.Invitation  `json:"invitations"`
	Applications  []domain.Application `json:"applications"`
	InvitingUsers []domain.Role        `json:"inviting_users"`
	ApplyingUsers []domain.Role        `json:"applying_users"`
	Battle        domain.BattleState   `json:"battle"`
	Remaining     time.Duration        `json:"remaining"`
	Relaying      bool                 `json:"relaying"`
}

func (r *Room) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := r.loop.Call(ctx, func() {
		_, relaying := r.battle.RelayConfig()
		s = Snapshot{
			RoomID:        r.id,
			Channel:       r.sess.Channel,
			Local:         r.sess.Local,
			Owner:         r.sess.Owner,
			Seats:         r.seats.Seats(),
			Invitations:   r.cohost.Invitations(),
			Applications:  r.cohost.Applications(),
			InvitingUsers: r.cohost.InvitingUsers(),
			ApplyingUsers: r.cohost.ApplyingUsers(),
			Battle:        r.battle.State(),
			Remaining:     r.battle.Remaining(r.now()),
			Relaying:      relaying,
		}
	})
	return s, err
}

// leaveTimeout bounds the whole teardown. Teardown ignores the caller's
// cancellation so observers and the relay are always released.
const leaveTimeout = 10 * time.Second

// Leave tears the room down and tells the server the local user left.
// Observers are cancelled and queues closed first, then the channel is
// left, the relay stopped and the loop stopped. Only the first call does
// anything.
func (r *Room) Leave(ctx context.Context) error {
	r.leaveOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
		defer cancel()

		r.teardown(ctx)
		if _, err := r.dispatcher.Send(ctx, transport.LiveLeave(r.id)); err != nil {
			r.leaveErr = fmt.Errorf("leave room %s: %w", r.id, err)
		}
		r.logger.Info().Msg("room left")
	})
	return r.leaveErr
}

func (r *Room) teardown(ctx context.Context) {
	if err := r.loop.Call(ctx, r.closeAll); err != nil {
		r.logger.Warn().Err(err).Msg("close coordinators")
	}
	if err := r.channel.Leave(ctx, r.id); err != nil {
		r.logger.Warn().Err(err).Msg("leave channel")
	}
	if err := r.loop.Call(ctx, func() { r.battle.StopRelay(battle.ReasonLeave) }); err != nil {
		r.logger.Warn().Err(err).Msg("stop relay")
	}
	r.loop.Stop()
}

// closeAll runs on the loop.
func (r *Room) closeAll() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.seats.Close()
	r.cohost.Close()
	r.battle.Close()
}
