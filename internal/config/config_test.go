package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesRealtimeDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.PingInterval)
	require.Equal(t, 5*time.Second, cfg.CallDedupeWindow)
	require.Equal(t, 32, cfg.WriteBuffer)
	require.Equal(t, 4000, cfg.MessageMaxLength)
	require.Equal(t, 120, cfg.MessagesPerMinute)
	require.Equal(t, "gema", cfg.RealtimeChannel)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_APP_PORT", ":9090")
	t.Setenv("GEMA_NATS_URL", "nats://localhost:4222")
	t.Setenv("GEMA_REALTIME_OPERATION_TIMEOUT", "2s")
	t.Setenv("GEMA_CALL_DEDUPE_WINDOW", "10s")
	t.Setenv("GEMA_MESSAGE_MAX_LENGTH", "500")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	require.Equal(t, 2*time.Second, cfg.OperationTimeout)
	require.Equal(t, 10*time.Second, cfg.CallDedupeWindow)
	require.Equal(t, 500, cfg.MessageMaxLength)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_REALTIME_PING_INTERVAL", "often")
	_, err = Load()
	require.Error(t, err)
}
