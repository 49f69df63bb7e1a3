package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "https://www.scrapyard.dev", cfg.TagBaseURL)
	assert.Equal(t, 1, cfg.EventID)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, 20, cfg.TokenRateLimitPerMin)
	assert.False(t, cfg.Production())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
HTTP_PORT: 9000
event_id: 7
NFC_DRIVER: sim
AUDIT_ENABLED: false
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NFC_DRIVER", "none")

	cfg := Load()
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 7, cfg.EventID)
	assert.Equal(t, "none", cfg.NFCDriver)
	assert.False(t, cfg.AuditEnabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("EVENT_ID", "abc")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("AUDIT_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 1, cfg.EventID)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.AuditEnabled)
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CORS_ORIGINS", " https://ops.example.dev, ,https://checkin.example.dev ")

	cfg := Load()
	assert.Equal(t, []string{"https://ops.example.dev", "https://checkin.example.dev"}, cfg.CORSOrigins)
	assert.Equal(t, "postgres", cfg.AuditDriver)
}
