// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/recollect-ai/recolld/pkg/core/capture"
)

// Config is the daemon configuration.
type Config struct {
	Addr        string
	DatabaseURL string

	// DeepgramAPIKey is the default transcription credential. A per-request
	// credential in the session start call overrides it.
	DeepgramAPIKey string
	GoogleAPIKey   string
	GeminiModel    string

	SampleRate  int
	Channels    int
	ChunkFrames int

	TranscriptCharBudget int
	TranscriptMinLines   int
	RecentCapacity       int
	QueueCapacity        int

	StartTimeout    time.Duration
	StopTimeout     time.Duration
	AnalysisTimeout time.Duration

	ShutdownGracePeriod time.Duration
}

// LoadFromEnv reads configuration from environment variables, applying
// defaults for everything but the database URL.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envStr("RECOLL_ADDR", ":8000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DeepgramAPIKey:      os.Getenv("DEEPGRAM_API_KEY"),
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:         os.Getenv("GEMINI_MODEL"),
		ShutdownGracePeriod: envDuration("RECOLL_SHUTDOWN_GRACE", 15*time.Second),
	}

	var err error
	if cfg.SampleRate, err = envInt("RECOLL_SAMPLE_RATE", 16000); err != nil {
		return Config{}, err
	}
	if cfg.Channels, err = envInt("RECOLL_CHANNELS", 1); err != nil {
		return Config{}, err
	}
	if cfg.ChunkFrames, err = envInt("RECOLL_CHUNK_FRAMES", 8000); err != nil {
		return Config{}, err
	}
	if cfg.TranscriptCharBudget, err = envInt("RECOLL_TRANSCRIPT_BUDGET", 20000); err != nil {
		return Config{}, err
	}
	if cfg.TranscriptMinLines, err = envInt("RECOLL_TRANSCRIPT_MIN_LINES", 50); err != nil {
		return Config{}, err
	}
	if cfg.RecentCapacity, err = envInt("RECOLL_RECENT_CAPACITY", 100); err != nil {
		return Config{}, err
	}
	if cfg.QueueCapacity, err = envInt("RECOLL_QUEUE_CAPACITY", 256); err != nil {
		return Config{}, err
	}
	cfg.StartTimeout = envDuration("RECOLL_START_TIMEOUT", 5*time.Second)
	cfg.StopTimeout = envDuration("RECOLL_STOP_TIMEOUT", 5*time.Second)
	cfg.AnalysisTimeout = envDuration("RECOLL_ANALYSIS_TIMEOUT", 60*time.Second)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// SessionConfig maps daemon configuration onto the capture engine's config.
func (c Config) SessionConfig() capture.SessionConfig {
	return capture.SessionConfig{
		Audio: capture.AudioConfig{
			SampleRate:  c.SampleRate,
			Channels:    c.Channels,
			ChunkFrames: c.ChunkFrames,
		},
		TranscriptCharBudget: c.TranscriptCharBudget,
		TranscriptMinLines:   c.TranscriptMinLines,
		RecentCapacity:       c.RecentCapacity,
		QueueCapacity:        c.QueueCapacity,
		StartTimeout:         c.StartTimeout,
		StopTimeout:          c.StopTimeout,
		AnalysisTimeout:      c.AnalysisTimeout,
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
