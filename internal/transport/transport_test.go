package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/internal/transport/transporttest"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(16)
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("completion not delivered")
		return nil
	}
}

func TestDispatchSuccessRunsThenOnLoop(t *testing.T) {
	l := startLoop(t)
	d := transporttest.NewDispatcher()
	d.Respond(transport.CmdBattleAction, json.RawMessage(`{"ok":true}`))

	var got string
	done := transport.Dispatch(context.Background(), l, d,
		func() (transport.Command, error) {
			return transport.BattleAction("R1", "R2", domain.BattleActionInvite), nil
		},
		func(resp json.RawMessage) error {
			got = string(resp)
			return nil
		})

	require.NoError(t, wait(t, done))
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, `{"ok":true}`, got)
	require.Len(t, d.Sent(), 1)
	assert.NotEmpty(t, d.Sent()[0].ID)
}

func TestDispatchPrepareErrorSkipsSend(t *testing.T) {
	l := startLoop(t)
	d := transporttest.NewDispatcher()

	done := transport.Dispatch(context.Background(), l, d,
		func() (transport.Command, error) { return transport.Command{}, domain.ErrNotOwner },
		nil)

	assert.ErrorIs(t, wait(t, done), domain.ErrNotOwner)
	assert.Empty(t, d.Sent())
}

func TestDispatchSendErrorSkipsThen(t *testing.T) {
	l := startLoop(t)
	d := transporttest.NewDispatcher()
	d.Fail(transport.CmdSeatStateChange, domain.ErrTransport)

	thenCalled := false
	done := transport.Dispatch(context.Background(), l, d,
		func() (transport.Command, error) {
			return transport.SeatStateChange("R1", 1, domain.SeatClosed, ""), nil
		},
		func(json.RawMessage) error {
			thenCalled = true
			return nil
		})

	assert.ErrorIs(t, wait(t, done), domain.ErrTransport)
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.False(t, thenCalled)
}

func TestDispatchThenError(t *testing.T) {
	l := startLoop(t)
	d := transporttest.NewDispatcher()
	boom := errors.New("boom")

	done := transport.Dispatch(context.Background(), l, d,
		func() (transport.Command, error) { return transport.LiveLeave("R1"), nil },
		func(json.RawMessage) error { return boom })

	assert.ErrorIs(t, wait(t, done), boom)
}

func TestDispatchOnStoppedLoop(t *testing.T) {
	l := loop.New(1)
	go l.Run()
	l.Stop()

	done := transport.Dispatch(context.Background(), l, transporttest.NewDispatcher(),
		func() (transport.Command, error) { return transport.LiveLeave("R1"), nil },
		nil)

	assert.ErrorIs(t, wait(t, done), domain.ErrLoopStopped)
	select {
	case err := <-done:
		t.Fatalf("second completion delivered: %v", err)
	default:
	}
}

func TestCommandPayloads(t *testing.T) {
	tests := []struct {
		name string
		cmd  transport.Command
		want string
	}{
		{
			name: "seat state",
			cmd:  transport.SeatStateChange("R1", 2, domain.SeatOccupied, "u1"),
			want: `{"no":2,"state":1,"userId":"u1"}`,
		},
		{
			name: "co-host",
			cmd:  transport.CoHostAction("R1", "u1", 3, domain.ActionForceEnd),
			want: `{"no":3,"type":7}`,
		},
		{
			name: "battle",
			cmd:  transport.BattleAction("R1", "R2", domain.BattleActionReject),
			want: `{"roomId":"R2","type":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.cmd.Payload)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
			assert.Equal(t, "R1", tt.cmd.RoomID)
		})
	}
}
