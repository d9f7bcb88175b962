package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()

	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatherly")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()

	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatherly")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 25, cfg.Database.MaxConnections)
	require.Equal(t, 168*time.Hour, cfg.Auth.JWTExpiry)
	require.False(t, cfg.Realtime.AllowAnonymousSubscribe)
	require.Equal(t, 5*time.Second, cfg.Realtime.WriteTimeout)
	require.Equal(t, "development", cfg.Environment)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatherly")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REALTIME_ALLOW_ANONYMOUS_SUBSCRIBE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Realtime.AllowAnonymousSubscribe)
	require.Equal(t, "debug", cfg.Logging.Level)
}
