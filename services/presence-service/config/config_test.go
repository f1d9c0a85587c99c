package config

import (
	"testing"
	"time"

	"github.com/tj/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "RECONCILE_INTERVAL", "INACTIVITY_THRESHOLD", "RING_TIMEOUT",
		"REDIS_DB", "ALLOWED_ORIGINS", "ENVIRONMENT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.InactivityThreshold)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 0, len(cfg.Invalid))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RECONCILE_INTERVAL", "1s")
	t.Setenv("INACTIVITY_THRESHOLD", "5m")
	t.Setenv("RING_TIMEOUT", "45s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 5*time.Minute, cfg.InactivityThreshold)
	assert.Equal(t, 45*time.Second, cfg.RingTimeout)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RING_TIMEOUT", "soon")
	t.Setenv("RECONCILE_INTERVAL", "-5s")
	t.Setenv("REDIS_DB", "zero")

	cfg := LoadConfig()

	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.ElementsMatch(t, []InvalidValue{
		{Key: "REDIS_DB", Value: "zero", Fallback: "0"},
		{Key: "RECONCILE_INTERVAL", Value: "-5s", Fallback: "5s"},
		{Key: "RING_TIMEOUT", Value: "soon", Fallback: "30s"},
	}, cfg.Invalid)
}
