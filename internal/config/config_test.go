package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.PubSub.Driver)
	assert.Equal(t, 10, cfg.Coordination.QueueMax)
	assert.Equal(t, 30*time.Second, cfg.Coordination.QueueTTL)
	assert.Equal(t, time.Second, cfg.Coordination.TickInterval)
	assert.False(t, cfg.Coordination.AssertProtocol)
	assert.Equal(t, 2, cfg.Dispatcher.Retries)
	assert.Equal(t, 200*time.Millisecond, cfg.Dispatcher.Backoff)
	assert.Equal(t, "interaction-events", cfg.Kafka.Topic)
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("USER_ID", "u42")
	t.Setenv("PUBSUB_DRIVER", "nats")
	t.Setenv("ASSERT_PROTOCOL", "true")
	t.Setenv("COORDINATION_QUEUE_TTL", "45s")
	t.Setenv("ROOM_HTTP_ADDRESS", "http://rooms:8083")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "u42", cfg.User.ID)
	assert.Equal(t, "nats", cfg.PubSub.Driver)
	assert.True(t, cfg.Coordination.AssertProtocol)
	assert.Equal(t, 45*time.Second, cfg.Coordination.QueueTTL)
	assert.Equal(t, "http://rooms:8083", cfg.Dispatcher.BaseURL)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
