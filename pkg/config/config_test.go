package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenEnvIsEmpty(t *testing.T) {
	for _, key := range []string{
		"NARRATOR_DB_PATH", "UPLOAD_DIR", "OUTPUT_DIR", "NATS_URL",
		"MAX_CONCURRENT_JOBS", "DISPATCH_POLL_INTERVAL",
		"TRANSLATION_MAX_TOKENS", "RETENTION_AGE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/narrator.db", cfg.DBPath)
	assert.Equal(t, "./data/uploads", cfg.UploadDir)
	assert.Equal(t, "./data/outputs", cfg.OutputDir)
	assert.Equal(t, 2, cfg.MaxConcurrentJobs)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 20000, cfg.TranslationMaxTokens)
	assert.Zero(t, cfg.RetentionAge, "retention is off by default")
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_ReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("NARRATOR_DB_PATH", "/var/lib/narrator/jobs.db")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("DISPATCH_POLL_INTERVAL", "2s")
	t.Setenv("TRANSLATION_MAX_TOKENS", "5000")
	t.Setenv("RETENTION_AGE", "168h")
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/narrator/jobs.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5000, cfg.TranslationMaxTokens)
	assert.Equal(t, 7*24*time.Hour, cfg.RetentionAge)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
}

func TestLoad_RejectsNonPositiveConcurrency(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_JOBS")
}

func TestLoad_RejectsMalformedPollInterval(t *testing.T) {
	t.Setenv("DISPATCH_POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_POLL_INTERVAL")
}

func TestLoad_RejectsTokenBudgetBelowChunkerFloor(t *testing.T) {
	t.Setenv("TRANSLATION_MAX_TOKENS", "50")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSLATION_MAX_TOKENS")
}
