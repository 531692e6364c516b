// Package seat keeps the seat list of a joined room. The list is only ever
// replaced wholesale by an authoritative push; local commands never patch it.
package seat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/observer"
	"github.com/weiawesome/wes-io-live/internal/session"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// unassignedUser is the userId sent with a state change not tied to a user.
const unassignedUser = "0"

// Registry holds the ordered seats of one room. It is confined to the
// room's coordination loop.
type Registry struct {
	sess       *session.Session
	ex         transport.Executor
	dispatcher transport.Dispatcher
	logger     zerolog.Logger

	seats   []domain.Seat
	changed observer.Subject[[]domain.Seat]
	cancel  func()
}

// NewRegistry creates a registry seeded with the join snapshot.
func NewRegistry(sess *session.Session, ex transport.Executor, d transport.Dispatcher, initial []domain.Seat) (*Registry, error) {
	seats := append([]domain.Seat(nil), initial...)
	if err := domain.NormalizeSeats(seats); err != nil {
		return nil, fmt.Errorf("initial seats: %w", err)
	}
	return &Registry{
		sess:       sess,
		ex:         ex,
		dispatcher: d,
		logger:     log.Component("seat").With().Str(log.FieldRoomID, sess.RoomID).Logger(),
		seats:      seats,
	}, nil
}

// Start listens for seat pushes on ch.
func (r *Registry) Start(ch transport.Channel) {
	r.cancel = ch.OnChannelMessage(r.handle)
}

// Close stops listening and drops every subscriber.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.changed.Clear()
}

// Seats returns a copy of the seat list, ascending by index.
func (r *Registry) Seats() []domain.Seat {
	return append([]domain.Seat(nil), r.seats...)
}

// Seat returns the seat with the given index.
func (r *Registry) Seat(index int) (domain.Seat, bool) {
	for _, s := range r.seats {
		if s.Index == index {
			return s, true
		}
	}
	return domain.Seat{}, false
}

// SeatOf returns the seat occupied by userID.
func (r *Registry) SeatOf(userID string) (domain.Seat, bool) {
	for _, s := range r.seats {
		if s.Occupant != nil && s.Occupant.UserID == userID {
			return s, true
		}
	}
	return domain.Seat{}, false
}

// Subscribe registers fn to receive the full list after every replacement.
func (r *Registry) Subscribe(fn func([]domain.Seat)) (cancel func()) {
	return r.changed.Subscribe(fn)
}

// Update asks the server to move seat index to state. Local state is left
// alone; the change shows up with the next push.
func (r *Registry) Update(ctx context.Context, state domain.SeatState, index int) <-chan error {
	return transport.Dispatch(ctx, r.ex, r.dispatcher, func() (transport.Command, error) {
		if !r.sess.LocalIsOwner() {
			return transport.Command{}, domain.ErrNotOwner
		}
		if !state.Valid() {
			return transport.Command{}, fmt.Errorf("%w: state %d", domain.ErrInvalidSeat, int(state))
		}
		if _, ok := r.Seat(index); !ok {
			return transport.Command{}, fmt.Errorf("%w: no seat %d", domain.ErrInvalidSeat, index)
		}
		r.logger.Info().Int(log.FieldSeatIndex, index).Stringer("state", state).Msg("seat state change requested")
		return transport.SeatStateChange(r.sess.RoomID, index, state, unassignedUser), nil
	}, nil)
}

// Apply replaces the seat list. An invalid list leaves the current one
// untouched.
func (r *Registry) Apply(seats []domain.Seat) error {
	next := append([]domain.Seat(nil), seats...)
	if err := domain.NormalizeSeats(next); err != nil {
		return err
	}
	r.seats = next
	r.changed.Publish(r.Seats())
	return nil
}

func (r *Registry) handle(msg domain.Message) {
	if msg.Cmd != domain.ChannelCmdSeats {
		return
	}
	if err := r.applyRaw(msg.Data); err != nil {
		r.logger.Warn().Err(err).Str(log.FieldCmd, msg.Cmd).Msg("seat push dropped")
	}
}

func (r *Registry) applyRaw(data json.RawMessage) error {
	seats, err := domain.ParseSeats(data)
	if err != nil {
		return err
	}
	return r.Apply(seats)
}
