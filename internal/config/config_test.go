package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/recoll_test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":8000" {
		t.Errorf("addr = %q, want :8000", cfg.Addr)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.ChunkFrames != 8000 {
		t.Errorf("audio defaults wrong: %d/%d/%d", cfg.SampleRate, cfg.Channels, cfg.ChunkFrames)
	}
	if cfg.TranscriptCharBudget != 20000 || cfg.TranscriptMinLines != 50 {
		t.Errorf("transcript defaults wrong: %d/%d", cfg.TranscriptCharBudget, cfg.TranscriptMinLines)
	}
	if cfg.StartTimeout != 5*time.Second || cfg.StopTimeout != 5*time.Second {
		t.Errorf("timeout defaults wrong: %v/%v", cfg.StartTimeout, cfg.StopTimeout)
	}
	if cfg.AnalysisTimeout != 60*time.Second {
		t.Errorf("analysis timeout = %v, want 60s", cfg.AnalysisTimeout)
	}
}

func TestLoadFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected an error when DATABASE_URL is unset")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/recoll_test")
	t.Setenv("RECOLL_ADDR", "127.0.0.1:9001")
	t.Setenv("RECOLL_SAMPLE_RATE", "44100")
	t.Setenv("RECOLL_TRANSCRIPT_BUDGET", "5000")
	t.Setenv("RECOLL_START_TIMEOUT", "2s")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9001" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("sample rate = %d", cfg.SampleRate)
	}
	if cfg.TranscriptCharBudget != 5000 {
		t.Errorf("transcript budget = %d", cfg.TranscriptCharBudget)
	}
	if cfg.StartTimeout != 2*time.Second {
		t.Errorf("start timeout = %v", cfg.StartTimeout)
	}
	if cfg.DeepgramAPIKey != "dg-test" {
		t.Errorf("deepgram key = %q", cfg.DeepgramAPIKey)
	}
}

func TestLoadFromEnvRejectsBadInteger(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/recoll_test")
	t.Setenv("RECOLL_CHANNELS", "stereo")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected an error for a non-numeric integer variable")
	}
}

func TestSessionConfigMapping(t *testing.T) {
	cfg := Config{
		SampleRate:           8000,
		Channels:             2,
		ChunkFrames:          4000,
		TranscriptCharBudget: 1000,
		TranscriptMinLines:   10,
		RecentCapacity:       20,
		QueueCapacity:        64,
		StartTimeout:         time.Second,
		StopTimeout:          2 * time.Second,
		AnalysisTimeout:      3 * time.Second,
	}

	sc := cfg.SessionConfig()
	if sc.Audio.SampleRate != 8000 || sc.Audio.Channels != 2 || sc.Audio.ChunkFrames != 4000 {
		t.Errorf("audio mapping wrong: %+v", sc.Audio)
	}
	if sc.TranscriptCharBudget != 1000 || sc.TranscriptMinLines != 10 {
		t.Errorf("transcript mapping wrong: %+v", sc)
	}
	if sc.QueueCapacity != 64 || sc.RecentCapacity != 20 {
		t.Errorf("capacity mapping wrong: %+v", sc)
	}
	if sc.StartTimeout != time.Second || sc.StopTimeout != 2*time.Second || sc.AnalysisTimeout != 3*time.Second {
		t.Errorf("timeout mapping wrong: %+v", sc)
	}
}
