package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, "127.0.0.1:34115", c.HTTP.Addr)
	assert.Equal(t, "info", c.Log.ConsoleLevel)
	assert.Equal(t, "debug", c.Log.FileLevel)
	assert.Equal(t, "com.itehadironstore.management", c.Storage.AppName)
	assert.Equal(t, "store.db", c.Storage.DatabaseFile)
	assert.Empty(t, c.Backup.Schedule)
	assert.Equal(t, 2*time.Second, c.Backup.RestartDelay)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("APP_NAME", "com.example.test")
	t.Setenv("DB_FILE", "other.db")
	t.Setenv("PRIMARY_DATA_DIR", "/tmp/primary")
	t.Setenv("BACKUP_SCHEDULE", "0 3 * * *")
	t.Setenv("RESTART_DELAY", "5s")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, "127.0.0.1:9999", c.HTTP.Addr)
	assert.Equal(t, "com.example.test", c.Storage.AppName)
	assert.Equal(t, "other.db", c.Storage.DatabaseFile)
	assert.Equal(t, "/tmp/primary", c.Storage.Roots.PrimaryData)
	assert.Equal(t, "0 3 * * *", c.Backup.Schedule)
	assert.Equal(t, 5*time.Second, c.Backup.RestartDelay)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("ENV", "staging")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_CONSOLE_LEVEL", "verbose")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidRestartDelay(t *testing.T) {
	t.Setenv("RESTART_DELAY", "not-a-duration")
	_, err := Load()
	assert.Error(t, err)
}
