// Package config loads runtime settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/opennarrator/narrator/pkg/chunk"
)

// Config holds every runtime setting of the narration service.
type Config struct {
	// DBPath is the SQLite database file backing the job queue.
	DBPath string

	// UploadDir and OutputDir hold source files and rendered audio.
	UploadDir string
	OutputDir string

	// MaxConcurrentJobs bounds how many jobs run simultaneously; the
	// heavyweight engines make each job expensive.
	MaxConcurrentJobs int

	// PollInterval is the dispatcher's claim cadence.
	PollInterval time.Duration

	// TranslationMaxTokens is the per-chunk token budget for translation.
	TranslationMaxTokens int

	// RetentionAge is how long terminal jobs and their artifacts are kept.
	// Zero disables the retention sweep.
	RetentionAge time.Duration

	// NATSURL enables the NATS progress publisher when non-empty.
	NATSURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DBPath:    getenv("NARRATOR_DB_PATH", "./data/narrator.db"),
		UploadDir: getenv("UPLOAD_DIR", "./data/uploads"),
		OutputDir: getenv("OUTPUT_DIR", "./data/outputs"),
		NATSURL:   getenv("NATS_URL", ""),
	}

	maxJobs, err := parsePositiveInt(getenv("MAX_CONCURRENT_JOBS", "2"), "MAX_CONCURRENT_JOBS")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentJobs = maxJobs

	poll, err := parseDuration(getenv("DISPATCH_POLL_INTERVAL", "500ms"), "DISPATCH_POLL_INTERVAL")
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = poll

	maxTokens, err := parsePositiveInt(getenv("TRANSLATION_MAX_TOKENS", "20000"), "TRANSLATION_MAX_TOKENS")
	if err != nil {
		return Config{}, err
	}
	if maxTokens < chunk.MinMaxTokens {
		return Config{}, fmt.Errorf("TRANSLATION_MAX_TOKENS must be at least %d (got %d)", chunk.MinMaxTokens, maxTokens)
	}
	cfg.TranslationMaxTokens = maxTokens

	if raw := getenv("RETENTION_AGE", ""); raw != "" {
		retention, err := parseDuration(raw, "RETENTION_AGE")
		if err != nil {
			return Config{}, err
		}
		cfg.RetentionAge = retention
	}

	return cfg, nil
}

func parsePositiveInt(value, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseDuration(value, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, d)
	}
	return d, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
