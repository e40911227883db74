package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://api.truto.one", cfg.TrutoBaseURL)
	assert.Equal(t, "conversational-intelligence", cfg.TrutoUnifiedModel)
	assert.Equal(t, EventSinkLog, cfg.EventSink)
	assert.Equal(t, domain.ResetPolicyAlways, cfg.ResetPolicy)
	assert.Equal(t, domain.RateLimitPolicyImmediate, cfg.RateLimitPolicy)
	assert.Equal(t, 10*time.Minute, cfg.InvocationTimeout)
	require.Len(t, cfg.SyncUnits, 1)
	assert.Equal(t, "devrev", cfg.SyncUnits[0].ID)
	assert.False(t, cfg.UsesRedisState())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("EVENT_SINK", "redis")
	t.Setenv("RESET_POLICY", "skip-completed")
	t.Setenv("RATE_LIMIT_POLICY", "honor")
	t.Setenv("INVOCATION_TIMEOUT", "90")
	t.Setenv("CHECKPOINT_MARGIN", "5s")
	t.Setenv("TRUTO_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SYNC_UNITS", "acme=Acme Corp, globex")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, EventSinkRedis, cfg.EventSink)
	assert.Equal(t, domain.ResetPolicySkipCompleted, cfg.ResetPolicy)
	assert.Equal(t, domain.RateLimitPolicyHonor, cfg.RateLimitPolicy)
	assert.Equal(t, 90*time.Second, cfg.InvocationTimeout)
	assert.Equal(t, 5*time.Second, cfg.CheckpointMargin)
	assert.Equal(t, 2.5, cfg.TrutoRequestsPerSecond)
	assert.False(t, cfg.SchedulerEnabled)
	assert.True(t, cfg.UsesRedisState())

	require.Len(t, cfg.SyncUnits, 2)
	assert.Equal(t, domain.ExternalSyncUnit{ID: "acme", Name: "Acme Corp", Description: "Truto users of Acme Corp"}, cfg.SyncUnits[0])
	assert.Equal(t, "globex", cfg.SyncUnits[1].Name)
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv("RESET_POLICY", "sometimes")

	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"callback without url", func(c *Config) { c.EventSink = EventSinkCallback }, "CALLBACK_URL"},
		{"redis sink without redis", func(c *Config) { c.EventSink = EventSinkRedis }, "REDIS_URL"},
		{"unknown sink", func(c *Config) { c.EventSink = "kafka" }, "EVENT_SINK"},
		{"redis state without redis", func(c *Config) { c.StateBackend = "redis" }, "STATE_BACKEND"},
		{"no sync units", func(c *Config) { c.SyncUnits = nil }, "SYNC_UNITS"},
		{"margin exceeds budget", func(c *Config) { c.CheckpointMargin = c.InvocationTimeout }, "CHECKPOINT_MARGIN"},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequireUpstream(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.RequireUpstream()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUTO_TOKEN")
	assert.Contains(t, err.Error(), "TRUTO_INTEGRATED_ACCOUNT_ID")

	cfg.TrutoToken = "token"
	cfg.TrutoIntegratedAccountID = "acct"
	assert.NoError(t, cfg.RequireUpstream())
}

func TestUsesRedisState_ExplicitPostgres(t *testing.T) {
	cfg := &Config{RedisURL: "redis://localhost", StateBackend: "postgres"}
	assert.False(t, cfg.UsesRedisState())
}

func TestGetEnvDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
}
