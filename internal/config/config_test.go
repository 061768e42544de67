package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_DefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("SCHEDULE_INTERVAL_SECONDS", "")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "")
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "")
	t.Setenv("TENANT_ENFORCEMENT", "")

	cfg := Load()

	assert.Equal(t, DefaultScheduleInterval, cfg.ScheduleInterval)
	assert.Equal(t, DefaultWebhookRatePerS, cfg.WebhookRatePerSecond)
	assert.Equal(t, DefaultShutdownGrace, cfg.ShutdownGrace)
	assert.Equal(t, EnforcementStrict, cfg.TenantEnforcement)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("SCHEDULE_INTERVAL_SECONDS", "45")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "2.5")
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "15")
	t.Setenv("TENANT_ENFORCEMENT", "permissive")

	cfg := Load()

	assert.Equal(t, 45*time.Second, cfg.ScheduleInterval)
	assert.Equal(t, 2.5, cfg.WebhookRatePerSecond)
	assert.Equal(t, 15*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, EnforcementPermissive, cfg.TenantEnforcement)
}

func TestLoad_InvalidEnforcementFallsBackToDefault(t *testing.T) {
	t.Setenv("TENANT_ENFORCEMENT", "bogus")

	cfg := Load()

	assert.Equal(t, EnforcementStrict, cfg.TenantEnforcement)
}

func TestLoad_NonNumericDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("SCHEDULE_INTERVAL_SECONDS", "not-a-number")

	cfg := Load()

	assert.Equal(t, DefaultScheduleInterval, cfg.ScheduleInterval)
}

func TestStore_GetReturnsLoadedConfig(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://test")
	s, stop := NewStore(testLogger())
	defer stop()

	assert.Equal(t, "postgres://test", s.Get().DBDSN)
}
