package battle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/relay"
	"github.com/weiawesome/wes-io-live/internal/session"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/internal/transport/transporttest"
)

const relayJSON = `{"local":{"uid":1,"channelName":"ch-1","token":"t1"},"proxy":{"uid":2,"channelName":"ch-2","token":"t2"},"remote":{"uid":3}}`

const (
	startPush = `{"state":3,"event":1,"relayConfig":` + relayJSON + `,"roomId":"R2","channel":"ch-2","owner":{"userId":"o2","userName":"carol","uid":5},"startTime":1714564800000,"countDown":300000,"localRank":0,"remoteRank":0}`
	endPush   = `{"state":0,"event":0,"result":"win"}`
)

var (
	owner  = domain.NewOwner("o1", "owen", 1)
	viewer = domain.NewAudience("u1", "alice", 11)
	remote = domain.BattleRoom{RoomID: "R2", Channel: "ch-2", Owner: domain.NewOwner("o2", "carol", 5)}
)

type recordingRelayer struct {
	mu     sync.Mutex
	starts []domain.RelayConfig
	stops  []string
}

func (r *recordingRelayer) StartRelay(ctx context.Context, roomID string, cfg domain.RelayConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, cfg)
	return nil
}

func (r *recordingRelayer) StopRelay(ctx context.Context, roomID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, reason)
	return nil
}

func (r *recordingRelayer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts), len(r.stops)
}

type fixture struct {
	loop       *loop.Loop
	now        time.Time
	dispatcher *transporttest.Dispatcher
	channel    *transporttest.Channel
	relayer    *recordingRelayer
	manager    *relay.Manager
	coord      *Coordinator
}

func newFixture(t *testing.T, local domain.Role, cfg Config) *fixture {
	t.Helper()
	l := loop.New(16)
	go l.Run()
	t.Cleanup(l.Stop)

	f := &fixture{
		loop:       l,
		now:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		dispatcher: transporttest.NewDispatcher(),
		channel:    transporttest.NewChannel(),
		relayer:    &recordingRelayer{},
	}
	f.manager = relay.NewManager(f.relayer)
	sess := session.New("R1", "ch-1", local, owner)
	f.onLoop(t, func() {
		f.coord = New(sess, l, f.dispatcher, f.manager, cfg, WithClock(func() time.Time { return f.now }))
		f.coord.Start(f.channel)
	})
	return f
}

func (f *fixture) onLoop(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.loop.Call(context.Background(), fn))
}

func (f *fixture) push(t *testing.T, data string) {
	t.Helper()
	f.onLoop(t, func() { f.channel.DeliverChannel(domain.ChannelCmdPKEvent, data) })
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
		return nil
	}
}

func TestRelayFollowsBattleScenario(t *testing.T) {
	f := newFixture(t, owner, Config{})

	var events []domain.BattleEvent
	f.onLoop(t, func() { f.coord.SubscribeEvents(func(e domain.BattleEvent) { events = append(events, e) }) })

	f.push(t, startPush)

	starts, stops := f.relayer.counts()
	assert.Equal(t, 1, starts)
	assert.Zero(t, stops)
	active, room, ok := f.manager.Active()
	require.True(t, ok)
	assert.Equal(t, "R1", room)
	assert.Equal(t, "ch-2", active.Proxy.ChannelName)
	assert.Equal(t, "t1", active.Local.Token)
	assert.Equal(t, int64(3), active.Remote.UID)

	f.onLoop(t, func() {
		st := f.coord.State()
		assert.Equal(t, domain.BattleInDuration, st.Kind)
		require.NotNil(t, st.Info)
		assert.Equal(t, "R2", st.Info.RemoteRoom.RoomID)
	})

	f.push(t, endPush)
	f.push(t, endPush)

	starts, stops = f.relayer.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	_, _, ok = f.manager.Active()
	assert.False(t, ok)

	f.onLoop(t, func() {
		assert.Equal(t, domain.BattleNone, f.coord.State().Kind)
		require.Len(t, events, 3)
		assert.Equal(t, domain.BattleEventStart, events[0].Kind)
		assert.Equal(t, domain.BattleEventEnd, events[1].Kind)
		assert.Equal(t, domain.BattleWin, events[1].Result)
	})
}

func TestRelayStartIsIdempotent(t *testing.T) {
	f := newFixture(t, owner, Config{})

	f.push(t, startPush)
	f.push(t, startPush)

	starts, _ := f.relayer.counts()
	assert.Equal(t, 1, starts)
}

func TestNonOwnerNeverRelays(t *testing.T) {
	f := newFixture(t, viewer, Config{})

	f.push(t, startPush)
	f.push(t, endPush)

	starts, stops := f.relayer.counts()
	assert.Zero(t, starts)
	assert.Zero(t, stops)
	f.onLoop(t, func() { assert.Equal(t, domain.BattleNone, f.coord.State().Kind) })
}

func TestRelayConfigWithoutEventResumes(t *testing.T) {
	f := newFixture(t, owner, Config{})

	resume := `{"state":3,"relayConfig":` + relayJSON + `,"roomId":"R2","owner":{"userId":"o2","uid":5},"startTime":1,"countDown":1000,"localRank":1,"remoteRank":2}`
	f.push(t, resume)

	starts, _ := f.relayer.counts()
	assert.Equal(t, 1, starts)

	changed := `{"state":3,"relayConfig":{"local":{"uid":1,"channelName":"ch-1","token":"t9"},"proxy":{"uid":2,"channelName":"ch-2","token":"t2"},"remote":{"uid":3}},"roomId":"R2","owner":{"userId":"o2","uid":5},"startTime":1,"countDown":1000,"localRank":1,"remoteRank":2}`
	f.push(t, changed)

	starts, stops := f.relayer.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
	f.onLoop(t, func() {
		cfg, ok := f.coord.RelayConfig()
		require.True(t, ok)
		assert.Equal(t, "t9", cfg.Local.Token)
	})
}

func TestLeavingDurationStopsRelay(t *testing.T) {
	f := newFixture(t, owner, Config{})

	f.push(t, startPush)
	f.push(t, `{"state":0}`)

	_, stops := f.relayer.counts()
	assert.Equal(t, 1, stops)
}

func TestMalformedUpdateLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, owner, Config{AssertProtocol: true})
	f.push(t, startPush)

	var published int
	f.onLoop(t, func() { f.coord.SubscribeStates(func(domain.BattleState) { published++ }) })

	for _, data := range []string{
		`{"state":0,"event":0}`,
		`{"state":3,"event":2,"localRank":1}`,
		`{"event":0,"result":"lose"}`,
		`{"state":0,"event":0,"result":"maybe"}`,
	} {
		f.push(t, data)
	}

	starts, stops := f.relayer.counts()
	assert.Equal(t, 1, starts)
	assert.Zero(t, stops)
	f.onLoop(t, func() {
		assert.Equal(t, domain.BattleInDuration, f.coord.State().Kind)
		assert.Zero(t, published)
	})
}

func TestUnknownStatePanicsWhenAsserted(t *testing.T) {
	f := newFixture(t, owner, Config{AssertProtocol: true})
	msg := domain.Message{Cmd: domain.ChannelCmdPKEvent, Data: json.RawMessage(`{"state":9}`)}
	// The loop is idle while the test goroutine drives the handler.
	assert.Panics(t, func() { f.coord.handleChannel(msg) })

	g := newFixture(t, owner, Config{})
	assert.NotPanics(t, func() { g.coord.handleChannel(msg) })
}

func TestRemaining(t *testing.T) {
	f := newFixture(t, owner, Config{})
	f.push(t, startPush)

	f.onLoop(t, func() {
		assert.Equal(t, 5*time.Minute, f.coord.Remaining(f.now))
		assert.Equal(t, 4*time.Minute, f.coord.Remaining(f.now.Add(time.Minute)))
		assert.Zero(t, f.coord.Remaining(f.now.Add(time.Hour)))
	})

	f.push(t, endPush)
	f.onLoop(t, func() { assert.Zero(t, f.coord.Remaining(f.now)) })
}

func TestRankChanged(t *testing.T) {
	f := newFixture(t, owner, Config{})

	var events []domain.BattleEvent
	f.onLoop(t, func() { f.coord.SubscribeEvents(func(e domain.BattleEvent) { events = append(events, e) }) })

	f.push(t, `{"state":3,"event":2,"roomId":"R2","owner":{"userId":"o2","uid":5},"startTime":1,"countDown":1000,"localRank":7,"localRoomRank":4}`)

	f.onLoop(t, func() {
		require.Len(t, events, 1)
		assert.Equal(t, domain.BattleEventRankChanged, events[0].Kind)
		assert.Equal(t, int64(7), events[0].LocalScore)
		assert.Equal(t, int64(4), events[0].RemoteScore)
		assert.Equal(t, int64(4), f.coord.State().Info.RemoteScore)
	})
}

func TestPeerNotices(t *testing.T) {
	f := newFixture(t, owner, Config{})

	var notices []domain.BattleNotice
	f.onLoop(t, func() { f.coord.SubscribeNotices(func(n domain.BattleNotice) { notices = append(notices, n) }) })

	f.onLoop(t, func() {
		for _, typ := range []string{"1", "2", "3", "4"} {
			f.channel.DeliverPeer(domain.PeerCmdPK, `{"type":`+typ+`,"fromRoom":{"roomId":"R2","channel":"ch-2","owner":{"userId":"o2","uid":5}}}`)
		}
		f.channel.DeliverPeer(domain.PeerCmdPK, `{"type":2}`)
	})

	f.onLoop(t, func() {
		require.Len(t, notices, 4)
		assert.Equal(t, domain.BattlePeerInvited, notices[0].Kind)
		assert.Equal(t, domain.BattlePeerTimeout, notices[3].Kind)
		assert.Equal(t, "R2", notices[0].FromRoom.RoomID)
		assert.Equal(t, domain.RoleOwner, notices[0].FromRoom.Owner.Kind)
	})
}

func TestActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, owner, Config{})
	b := domain.NewBattle("R2", "R1")

	require.NoError(t, waitErr(t, f.coord.SendInvitationTo(ctx, remote)))
	require.NoError(t, waitErr(t, f.coord.Accept(ctx, b)))
	require.NoError(t, waitErr(t, f.coord.Reject(ctx, b)))

	sent := f.dispatcher.SentNamed(transport.CmdBattleAction)
	require.Len(t, sent, 3)
	for i, want := range []string{`{"roomId":"R2","type":1}`, `{"roomId":"R2","type":2}`, `{"roomId":"R2","type":3}`} {
		raw, err := json.Marshal(sent[i].Payload)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(raw))
		assert.Equal(t, "R1", sent[i].RoomID)
	}

	f.onLoop(t, func() { assert.Equal(t, domain.BattleNone, f.coord.State().Kind) })
}

func TestActionErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("audience", func(t *testing.T) {
		f := newFixture(t, viewer, Config{})
		assert.ErrorIs(t, waitErr(t, f.coord.SendInvitationTo(ctx, remote)), domain.ErrNotOwner)
		assert.Empty(t, f.dispatcher.Sent())
	})

	t.Run("own room", func(t *testing.T) {
		f := newFixture(t, owner, Config{})
		assert.ErrorIs(t, waitErr(t, f.coord.SendInvitationTo(ctx, domain.BattleRoom{RoomID: "R1"})), domain.ErrRoleMismatch)
	})

	t.Run("transport", func(t *testing.T) {
		f := newFixture(t, owner, Config{})
		f.dispatcher.Fail(transport.CmdBattleAction, domain.ErrTransport)
		assert.ErrorIs(t, waitErr(t, f.coord.Accept(ctx, domain.NewBattle("R2", "R1"))), domain.ErrTransport)
	})
}

func TestCloseRemovesHandlers(t *testing.T) {
	f := newFixture(t, owner, Config{})
	f.onLoop(t, f.coord.Close)

	peer, channel := f.channel.Handlers()
	assert.Zero(t, peer)
	assert.Zero(t, channel)
}
