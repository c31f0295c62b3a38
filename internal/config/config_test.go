package config

import (
	"os"
	"testing"
	"time"

	"github.com/nfrund/lernsino/internal/multiplayer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "ws://localhost:8080", cfg.HubURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	assert.Zero(t, cfg.MaxReconnectAttempts)
	assert.Equal(t, "lerncasino_global_chat", cfg.FallbackChannel)
	assert.Equal(t, os.TempDir(), cfg.FallbackDir)
}

func TestDefault_MatchesClientDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, multiplayer.DefaultURL, cfg.HubURL)
	assert.Equal(t, multiplayer.DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Equal(t, multiplayer.DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, multiplayer.DefaultFallbackChannel, cfg.FallbackChannel)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_PartialOverrideKeepsDefaults(t *testing.T) {
	t.Setenv("LERNSINO_DIAL_TIMEOUT", "3s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	want := Default()
	want.DialTimeout = 3 * time.Second
	assert.Equal(t, want, cfg)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LERNSINO_WS_URL", "wss://hub.example.com/ws")
	t.Setenv("LERNSINO_RECONNECT_INTERVAL", "250ms")
	t.Setenv("LERNSINO_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("LERNSINO_DIAL_TIMEOUT", "2s")
	t.Setenv("LERNSINO_FALLBACK_CHANNEL", "test_channel")
	t.Setenv("LERNSINO_HUB_ADDR", "127.0.0.1:9000")
	t.Setenv("LERNSINO_FALLBACK_DIR", "/var/tmp/lernsino")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "wss://hub.example.com/ws", cfg.HubURL)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectInterval)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, "test_channel", cfg.FallbackChannel)
	assert.Equal(t, "127.0.0.1:9000", cfg.HubAddr)
	assert.Equal(t, "/var/tmp/lernsino", cfg.FallbackDir)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non websocket url", "LERNSINO_WS_URL", "http://localhost:8080"},
		{"not a url", "LERNSINO_WS_URL", "localhost"},
		{"zero interval", "LERNSINO_RECONNECT_INTERVAL", "0s"},
		{"negative attempts", "LERNSINO_MAX_RECONNECT_ATTEMPTS", "-1"},
		{"unparsable duration", "LERNSINO_DIAL_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
