package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-approval/internal/config"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{
		DSN:            "postgres://app:secret@db:5432/tickets?sslmode=disable",
		MaxConns:       8,
		MinConns:       1,
		ConnMaxIdleSec: 30,
	}, "ticket-approval-service")
	require.NoError(t, err)

	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, 30*time.Second, cfg.MaxConnIdleTime)
	assert.Equal(t, "ticket-approval-service", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "UTC", cfg.ConnConfig.RuntimeParams["timezone"])
}

func TestPoolConfigKeepsDSNApplicationName(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{DSN: "postgres://db/tickets?application_name=worker"}, "api")
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigRequiresDSN(t *testing.T) {
	_, err := poolConfig(config.PostgresConfig{}, "api")
	assert.ErrorIs(t, err, ErrNoDSN)

	_, err = poolConfig(config.PostgresConfig{DSN: "postgres://%zz"}, "api")
	assert.Error(t, err)
}
