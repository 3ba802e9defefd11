package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERIAL_TIMEZONE", "")
	t.Setenv("SERIAL_LOCK_WAIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Workflow.SerialTimezone)
	assert.Equal(t, 3*time.Second, cfg.Workflow.SerialLockWait)
	assert.Equal(t, 3, cfg.Workflow.OpenRetryAttempts)

	loc, err := cfg.Workflow.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadWorkflowOverrides(t *testing.T) {
	t.Setenv("SERIAL_TIMEZONE", "Asia/Shanghai")
	t.Setenv("SERIAL_LOCK_TTL", "30s")
	t.Setenv("OPEN_RETRY_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Workflow.SerialLockTTL)
	assert.Equal(t, 5, cfg.Workflow.OpenRetryAttempts)

	loc, err := cfg.Workflow.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SERIAL_LOCK_WAIT", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SERIAL_LOCK_WAIT", "")
	t.Setenv("SERIAL_TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.Error(t, err)
}
