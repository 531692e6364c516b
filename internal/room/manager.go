package room

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Manager keeps the agent's single active room. Joining another room
// leaves the current one first.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	active *Room
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Join enters roomID. Joining the active room again returns it unchanged.
func (m *Manager) Join(ctx context.Context, roomID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if m.active.id == roomID {
			return m.active, nil
		}
		if err := m.active.Leave(ctx); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldRoomID, m.active.id).Msg("leave previous room")
		}
		m.active = nil
	}

	r, err := join(ctx, m.deps, roomID, m.ended)
	if err != nil {
		return nil, err
	}
	m.active = r
	return r, nil
}

// Room returns the active room if it is roomID.
func (m *Manager) Room(roomID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.id != roomID {
		return nil, domain.ErrRoomNotJoined
	}
	return m.active, nil
}

// Active returns the active room, if any.
func (m *Manager) Active() (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

// Leave leaves roomID.
func (m *Manager) Leave(ctx context.Context, roomID string) error {
	m.mu.Lock()
	r := m.active
	if r == nil || r.id != roomID {
		m.mu.Unlock()
		return domain.ErrRoomNotJoined
	}
	m.active = nil
	m.mu.Unlock()
	return r.Leave(ctx)
}

// Close leaves the active room.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	r := m.active
	m.active = nil
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Leave(ctx)
}

// ended leaves a room the server closed.
func (m *Manager) ended(r *Room) {
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()

	if err := r.Leave(context.Background()); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldRoomID, r.id).Msg("leave ended room")
	}
}
