package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/domain"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New(16)
	go l.Run()
	defer l.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoopCallWaitsForResult(t *testing.T) {
	l := New(1)
	go l.Run()
	defer l.Stop()

	var n int32
	require.NoError(t, l.Call(context.Background(), func() { atomic.StoreInt32(&n, 42) }))
	assert.Equal(t, int32(42), atomic.LoadInt32(&n))
}

func TestLoopStop(t *testing.T) {
	l := New(1)
	go l.Run()
	l.Stop()
	l.Stop()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), domain.ErrLoopStopped)

	select {
	case <-l.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestLoopCallHonoursContext(t *testing.T) {
	l := New(1)
	go l.Run()
	defer l.Stop()

	release := make(chan struct{})
	require.True(t, l.Post(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Call(ctx, func() {})
	close(release)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
