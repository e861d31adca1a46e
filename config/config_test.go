package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "forkcast", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Model)
	assert.Empty(t, cfg.AI.APIKey)
	assert.Empty(t, cfg.HomeAssistant.BaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FORKCAST_SERVER_PORT", "9090")
	t.Setenv("FORKCAST_DATABASE_HOST", "db.internal")
	t.Setenv("FORKCAST_AI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "test-key", cfg.AI.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("FORKCAST_SERVER_PORT", "-1")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FORKCAST_SERVER_PORT", "8080")
	t.Setenv("FORKCAST_DATABASE_DRIVER", "oracle")
	_, err = Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5432, Database: "forkcast",
		Username: "app", Password: "secret", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=app password=secret dbname=forkcast sslmode=disable",
		d.DSN())
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
