package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_URL", "WS_URL", "AUTH_TOKEN", "LISTEN_ADDR", "REDIS_URL", "FETCH_RETRIES", "LOG_LEVEL"} {
		// Setenv restores the original value after the test
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := Load()

	assert.Equal(t, Default().APIURL, cfg.APIURL)
	assert.Equal(t, Default().WSURL, cfg.WSURL)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Empty(t, cfg.AuthToken)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 3, cfg.FetchRetries)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_URL", "https://chat.example.com/api/")
	t.Setenv("WS_URL", "wss://chat.example.com/ws")
	t.Setenv("AUTH_TOKEN", "  tok  ")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("SNAPSHOT_TTL", "1h")
	t.Setenv("RECONNECT_MIN", "250ms")
	t.Setenv("RECONNECT_MAX", "10s")
	t.Setenv("FETCH_RETRIES", "0")
	t.Setenv("FETCH_RETRY_DELAY", "2s")
	t.Setenv("JOIN_RATE", "12.5")
	t.Setenv("JOIN_BURST", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "https://chat.example.com/api", cfg.APIURL)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.WSURL)
	assert.Equal(t, "tok", cfg.AuthToken)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectMin)
	assert.Equal(t, 10*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 0, cfg.FetchRetries)
	assert.Equal(t, 2*time.Second, cfg.FetchRetryDelay)
	assert.Equal(t, 12.5, cfg.JoinRate)
	assert.Equal(t, 4, cfg.JoinBurst)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SNAPSHOT_TTL", "forever")
	t.Setenv("RECONNECT_MIN", "-1s")
	t.Setenv("FETCH_RETRIES", "many")
	t.Setenv("JOIN_RATE", "0")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()
	def := Default()

	assert.Equal(t, def.SnapshotTTL, cfg.SnapshotTTL)
	assert.Equal(t, def.ReconnectMin, cfg.ReconnectMin)
	assert.Equal(t, def.FetchRetries, cfg.FetchRetries)
	assert.Equal(t, def.JoinRate, cfg.JoinRate)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
}

func TestSanitizeReconnectBounds(t *testing.T) {
	cfg := Default()
	cfg.ReconnectMin = 5 * time.Second
	cfg.ReconnectMax = time.Second
	cfg.ListenAddr = ""

	cfg = sanitize(cfg)

	assert.Equal(t, 5*time.Second, cfg.ReconnectMax)
	assert.Equal(t, ":8090", cfg.ListenAddr)
}
