package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "PORT", "HOST", "WEBCLI_CLI_PATH", "WEBCLI_IDLE_TIMEOUT", "WEBCLI_KILL_GRACE", "WEBCLI_LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Server.ListenAddr())
	assert.Equal(t, "dist/calculator-cli", cfg.Session.CLIPath)
	assert.Equal(t, time.Duration(0), cfg.Session.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Session.KillGrace)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("WEBCLI_CLI_PATH", "/opt/calc")
	t.Setenv("WEBCLI_IDLE_TIMEOUT", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr())
	assert.Equal(t, "/opt/calc", cfg.Session.CLIPath)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("WEBCLI_KILL_GRACE", "soon")

	_, err := Load()
	assert.Error(t, err)
}

// unsetenv removes the given variables for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}
