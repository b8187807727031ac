package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  driver: sqlite\n  dsn: \"file::memory:\"\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "development", cfg.Log.Environment)
	assert.Equal(t, "America/Sao_Paulo", cfg.Facility.Location.String())
	assert.Equal(t, 90, cfg.Booking.HorizonDays)
	assert.Equal(t, "confirmed", cfg.Booking.InitialStatus)
	assert.Equal(t, 5*time.Second, cfg.Booking.CommitTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Booking.IdempotencyTTL)
	assert.Equal(t, "X-User-ID", cfg.Auth.UserHeader)
	assert.Equal(t, 300*time.Second, cfg.Inventory.Interval)
	assert.Equal(t, 100, cfg.Inventory.Request.PageSize)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://agenda@db/agenda")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, "database:\n  driver: postgres\n  dsn: ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://agenda@db/agenda", cfg.Database.DSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"bad initial status", "booking:\n  initial_status: completed\n"},
		{"bad driver", "database:\n  driver: mysql\n"},
		{"bad timezone", "facility:\n  timezone: Mars/Olympus\n"},
		{"bad yaml", "server: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
