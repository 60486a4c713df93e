package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TM_HOST", "10.0.0.5")
	t.Setenv("TM_PORT", "9000")
	t.Setenv("TM_DB_PASSWORD", "fromenv")
	t.Setenv("TM_DB_POOL_SIZE", "32")
	t.Setenv("TM_SECRET_KEY", "envsecret")
	t.Setenv("TM_JWT_EXPIRATION", "12h")
	t.Setenv("TM_STORAGE_HOME", "/srv/tmaps")
	t.Setenv("TM_VERBOSITY", "4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "fromenv", cfg.Database.Password)
	assert.Equal(t, 32, cfg.Database.MaxOpenConns)
	assert.Equal(t, "envsecret", cfg.Auth.SecretKey)
	assert.Equal(t, 12*time.Hour, cfg.Auth.JWTExpiration.Std())
	assert.Equal(t, "/srv/tmaps", cfg.Storage.Home)
	assert.Equal(t, 4, cfg.Logging.Verbosity)
}

func TestApplyEnvOverridesInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "TM_PORT", "not-a-port"},
		{"bad db port", "TM_DB_PORT", "x"},
		{"bad pool size", "TM_DB_POOL_SIZE", "many"},
		{"bad expiration", "TM_JWT_EXPIRATION", "3 fortnights"},
		{"bad verbosity", "TM_VERBOSITY", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
