package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
)

const sampleYAML = `
server:
  port: 4000
websocket:
  ping_interval: 5s
  pong_wait: 15s
  allowed_origins:
    - https://chat.example.com
jwt:
  secret: file-secret
chat:
  max_message_length: 100
database:
  driver: sqlite
  file_path: /tmp/chat.db
pubsub:
  driver: redis
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(pkgconfig.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, 100, cfg.Chat.MaxMessageLength)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.Database.FilePath)

	// Defaults
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.AuthTimeout)
	assert.Equal(t, "internal-chat-api", cfg.JWT.Issuer)
	assert.Equal(t, "internal-chat-app", cfg.JWT.Audience)
	assert.Equal(t, "localhost:6379", cfg.PubSub.Redis.Address)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGIN", "https://a.example.com, https://b.example.com")

	cfg, err := Load(pkgconfig.WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 4000, cfg.Chat.MaxMessageLength)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(pkgconfig.WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestValidateRejectsPingAfterPong(t *testing.T) {
	cfg := Config{
		WebSocket: WebSocketConfig{PingInterval: time.Minute, PongWait: time.Second},
		Chat:      ChatConfig{MaxMessageLength: 10},
	}
	cfg.JWT.Secret = "s"
	assert.Error(t, cfg.Validate())
}
