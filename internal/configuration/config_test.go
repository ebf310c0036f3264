package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mongo": {"uri": "mongodb://db:27017", "database": "chat"},
		"server": {"app_port": 9000, "socket_port": 9001, "socket_route": "/live"},
		"chat": {"typing_timeout": "5s"},
		"auth": {"jwt_secret": "from-file"}
	}`), 0o600))

	t.Setenv("SERVER_APP_PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.ChatDatabase.Uri)
	assert.Equal(t, 9100, cfg.Server.AppPort)
	assert.Equal(t, 9001, cfg.Server.SocketPort)
	assert.Equal(t, "live", cfg.Server.SocketRoute)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTimeout.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Chat.UpdateTTL.Duration)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingTimeout.Duration)
	assert.Equal(t, BackendMongo, cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.Auth.JWTSecret = "x"
	require.NoError(t, cfg.Validate())

	cfg.Storage.PresenceBackend = BackendRedis
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")

	cfg.Storage.RedisURL = "redis://localhost:6379"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := NewLogger(level)
		require.NoError(t, err, level)
		require.NotNil(t, l)
	}

	_, err := NewLogger("loud")
	assert.Error(t, err)
}
