package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SNAPBOOK_API_URL", "http://localhost:8080/")
	t.Setenv("SNAPBOOK_SOCKET_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.SocketURL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReconnectTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SNAPBOOK_API_URL", "https://api.example.com")
	t.Setenv("SNAPBOOK_SOCKET_URL", "wss://live.example.com/socket")
	t.Setenv("SNAPBOOK_PING_INTERVAL", "5s")
	t.Setenv("SNAPBOOK_HTTP_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://live.example.com/socket", cfg.SocketURL)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
}

func TestSocketURLFor(t *testing.T) {
	u, err := SocketURLFor("https://api.example.com/v1")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/ws", u)
}

func TestLoadBackend_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	assert.Panics(t, func() { _, _ = LoadBackend() })

	t.Setenv("JWT_SECRET", "secret")
	cfg, err := LoadBackend()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.JWTAccessExpiry)
	assert.False(t, cfg.IsProduction())
}
