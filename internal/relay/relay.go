// Package relay owns the process-wide media relay used during battles. Only
// one relay can run at a time; the media side is driven over pub/sub.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// Relayer starts and stops a media relay.
type Relayer interface {
	StartRelay(ctx context.Context, roomID string, cfg domain.RelayConfig) error
	StopRelay(ctx context.Context, roomID string, reason string) error
}

// PubSubRelayer asks the media service of a room to relay by publishing on
// the room's relay control channel.
type PubSubRelayer struct {
	ps pubsub.Publisher
}

func NewPubSubRelayer(ps pubsub.Publisher) *PubSubRelayer {
	return &PubSubRelayer{ps: ps}
}

func (r *PubSubRelayer) StartRelay(ctx context.Context, roomID string, cfg domain.RelayConfig) error {
	payload := pubsub.StartRelayPayload{
		RoomID: roomID,
		Local:  endpoint(cfg.Local),
		Proxy:  endpoint(cfg.Proxy),
		Remote: endpoint(cfg.Remote),
	}
	return r.publish(ctx, roomID, pubsub.EventStartRelay, payload)
}

func (r *PubSubRelayer) StopRelay(ctx context.Context, roomID string, reason string) error {
	return r.publish(ctx, roomID, pubsub.EventStopRelay, pubsub.StopRelayPayload{RoomID: roomID, Reason: reason})
}

func (r *PubSubRelayer) publish(ctx context.Context, roomID, eventType string, payload interface{}) error {
	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if err := r.ps.Publish(ctx, pubsub.RelayToMediaChannel(roomID), event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func endpoint(e domain.RelayEndpoint) pubsub.RelayEndpoint {
	return pubsub.RelayEndpoint{UID: e.UID, ChannelName: e.ChannelName, Token: e.Token}
}

// Manager guards the single relay slot. It is shared by every room loop.
type Manager struct {
	mu      sync.Mutex
	relayer Relayer
	active  *domain.RelayConfig
	roomID  string
	logger  zerolog.Logger
}

func NewManager(relayer Relayer) *Manager {
	return &Manager{relayer: relayer, logger: log.Component("relay")}
}

// Start begins relaying cfg for roomID. Starting the active config again is
// a no-op; starting a different one while a relay runs fails with
// ErrRelayBusy.
func (m *Manager) Start(ctx context.Context, roomID string, cfg domain.RelayConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if *m.active == cfg && m.roomID == roomID {
			return nil
		}
		return fmt.Errorf("%w: room %s is relaying", domain.ErrRelayBusy, m.roomID)
	}
	if err := m.relayer.StartRelay(ctx, roomID, cfg); err != nil {
		return fmt.Errorf("%w: start relay: %v", domain.ErrTransport, err)
	}
	m.active = &cfg
	m.roomID = roomID
	m.logger.Info().Str(log.FieldRoomID, roomID).Str(log.FieldChannel, cfg.Proxy.ChannelName).Msg("relay started")
	return nil
}

// Restart replaces whatever relay roomID runs with cfg.
func (m *Manager) Restart(ctx context.Context, roomID string, cfg domain.RelayConfig) error {
	if err := m.Stop(ctx, roomID, "restart"); err != nil {
		return err
	}
	return m.Start(ctx, roomID, cfg)
}

// Stop ends the relay owned by roomID. Stopping with nothing active, or a
// relay owned by another room, is a no-op.
func (m *Manager) Stop(ctx context.Context, roomID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.roomID != roomID {
		return nil
	}
	if err := m.relayer.StopRelay(ctx, roomID, reason); err != nil {
		return fmt.Errorf("%w: stop relay: %v", domain.ErrTransport, err)
	}
	m.active = nil
	m.roomID = ""
	m.logger.Info().Str(log.FieldRoomID, roomID).Str("reason", reason).Msg("relay stopped")
	return nil
}

// Active returns the running relay config and the room that owns it.
func (m *Manager) Active() (domain.RelayConfig, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return domain.RelayConfig{}, "", false
	}
	return *m.active, m.roomID, true
}
