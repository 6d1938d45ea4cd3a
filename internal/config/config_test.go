package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "QUEUE_CAPACITY", "QUEUE_ENTRY_TTL", "QUEUE_MATCH_TTL",
		"QUEUE_SWEEP_INTERVAL", "MATCH_GAME_TIME_TOLERANCE", "MATCH_BET_TOLERANCE",
		"REDIS_URL", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, 120*time.Second, cfg.EntryTTL)
	assert.Equal(t, 180*time.Second, cfg.MatchTTL)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 60, cfg.GameTimeTolerance)
	assert.Equal(t, "10", cfg.BetAmountTolerance)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QUEUE_CAPACITY", "5")
	t.Setenv("QUEUE_ENTRY_TTL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.EntryTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_CAPACITY", "lots")
	t.Setenv("QUEUE_MATCH_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, 180*time.Second, cfg.MatchTTL)
}
