package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/transport/transporttest"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

type call struct {
	op     string
	roomID string
	cfg    domain.RelayConfig
}

type fakeRelayer struct {
	calls []call
	err   error
}

func (f *fakeRelayer) StartRelay(ctx context.Context, roomID string, cfg domain.RelayConfig) error {
	f.calls = append(f.calls, call{op: "start", roomID: roomID, cfg: cfg})
	return f.err
}

func (f *fakeRelayer) StopRelay(ctx context.Context, roomID string, reason string) error {
	f.calls = append(f.calls, call{op: "stop", roomID: roomID})
	return f.err
}

func config(remote int64) domain.RelayConfig {
	return domain.RelayConfig{
		Local:  domain.RelayEndpoint{UID: 1, ChannelName: "ch-1", Token: "t1"},
		Proxy:  domain.RelayEndpoint{UID: 2, ChannelName: "ch-2", Token: "t2"},
		Remote: domain.RelayEndpoint{UID: remote},
	}
}

func TestManagerStart(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		room    string
		cfg     domain.RelayConfig
		wantErr error
		calls   int
	}{
		{name: "same config is idempotent", room: "R1", cfg: config(3), calls: 1},
		{name: "different config is busy", room: "R1", cfg: config(4), wantErr: domain.ErrRelayBusy, calls: 1},
		{name: "other room is busy", room: "R2", cfg: config(3), wantErr: domain.ErrRelayBusy, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relayer := &fakeRelayer{}
			m := NewManager(relayer)
			require.NoError(t, m.Start(ctx, "R1", config(3)))

			err := m.Start(ctx, tt.room, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, relayer.calls, tt.calls)

			active, room, ok := m.Active()
			require.True(t, ok)
			assert.Equal(t, config(3), active)
			assert.Equal(t, "R1", room)
		})
	}
}

func TestManagerStop(t *testing.T) {
	ctx := context.Background()
	relayer := &fakeRelayer{}
	m := NewManager(relayer)

	require.NoError(t, m.Stop(ctx, "R1", "battle_end"))
	assert.Empty(t, relayer.calls)

	require.NoError(t, m.Start(ctx, "R1", config(3)))
	require.NoError(t, m.Stop(ctx, "R2", "leave"))
	_, _, ok := m.Active()
	assert.True(t, ok)

	require.NoError(t, m.Stop(ctx, "R1", "battle_end"))
	require.NoError(t, m.Stop(ctx, "R1", "battle_end"))
	_, _, ok = m.Active()
	assert.False(t, ok)
	assert.Len(t, relayer.calls, 2)

	require.NoError(t, m.Start(ctx, "R2", config(4)))
}

func TestManagerRestart(t *testing.T) {
	ctx := context.Background()
	relayer := &fakeRelayer{}
	m := NewManager(relayer)

	require.NoError(t, m.Start(ctx, "R1", config(3)))
	require.NoError(t, m.Restart(ctx, "R1", config(4)))

	active, _, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, config(4), active)
	assert.Equal(t, []string{"start", "stop", "start"}, []string{relayer.calls[0].op, relayer.calls[1].op, relayer.calls[2].op})
}

func TestManagerRelayerFailure(t *testing.T) {
	relayer := &fakeRelayer{err: errors.New("media down")}
	m := NewManager(relayer)

	err := m.Start(context.Background(), "R1", config(3))
	assert.ErrorIs(t, err, domain.ErrTransport)
	_, _, ok := m.Active()
	assert.False(t, ok)
}

func TestPubSubRelayer(t *testing.T) {
	ctx := context.Background()
	ps := transporttest.NewPubSub()
	r := NewPubSubRelayer(ps)

	require.NoError(t, r.StartRelay(ctx, "R1", config(3)))
	require.NoError(t, r.StopRelay(ctx, "R1", "battle_end"))

	published := ps.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "relay:room:R1:to_media", published[0].Channel)
	assert.Equal(t, pubsub.EventStartRelay, published[0].Event.Type)
	assert.Equal(t, pubsub.EventStopRelay, published[1].Event.Type)

	var start pubsub.StartRelayPayload
	require.NoError(t, published[0].Event.UnmarshalPayload(&start))
	assert.Equal(t, "R1", start.RoomID)
	assert.Equal(t, "ch-2", start.Proxy.ChannelName)
	assert.Equal(t, int64(3), start.Remote.UID)

	var stop pubsub.StopRelayPayload
	require.NoError(t, published[1].Event.UnmarshalPayload(&stop))
	assert.Equal(t, "battle_end", stop.Reason)
}
