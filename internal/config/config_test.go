package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8083", cfg.Port)
	require.Equal(t, 2*time.Second, cfg.PushTimeout)
	require.Equal(t, 32, cfg.PresenceShards)
	require.Equal(t, "chat.events", cfg.AMQPExchange)
	require.False(t, cfg.DebugRoutes)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PUSH_TIMEOUT", "750ms")
	t.Setenv("PRESENCE_SHARDS", "8")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, cfg.PushTimeout)
	require.Equal(t, 8, cfg.PresenceShards)
	require.True(t, cfg.DebugRoutes)
}

func TestLoadRejectsNonPositiveSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PRESENCE_SHARDS", "0")

	_, err := Load()
	require.Error(t, err)
}
