package capture

import (
	"fmt"
	"time"
)

// State represents the lifecycle state of a conversation session.
type State int32

const (
	// StateCreated is the initial state before Run is called.
	StateCreated State = iota
	// StateStarting is while the microphone and transcription stream come up.
	StateStarting
	// StateRunning is while audio flows and transcripts are being captured.
	StateRunning
	// StateStopping is while the stop sequence runs.
	StateStopping
	// StateStopped is the terminal state after a clean stop.
	StateStopped
	// StateFailed is the terminal state after an unrecoverable startup error.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state is Stopped or Failed.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// AudioConfig describes the PCM format captured from the microphone and sent
// to the transcription stream.
type AudioConfig struct {
	SampleRate int
	Channels   int
	// ChunkFrames is the number of sample frames delivered per capture callback.
	ChunkFrames int
}

// SessionConfig configures a conversation session.
type SessionConfig struct {
	Audio AudioConfig

	// TranscriptCharBudget bounds the total characters of retained transcript
	// lines once TranscriptMinLines have accumulated.
	TranscriptCharBudget int
	// TranscriptMinLines is the minimum number of lines retained regardless of
	// the character budget.
	TranscriptMinLines int
	// RecentCapacity is the size of the recent-transcripts ring.
	RecentCapacity int

	// QueueCapacity bounds the audio handoff queue between the capture
	// callback and the sender pipeline.
	QueueCapacity int

	// StartTimeout bounds the wait for the microphone to report active during
	// session creation.
	StartTimeout time.Duration
	// StopTimeout bounds the wait for a session's run loop to terminate.
	StopTimeout time.Duration
	// AnalysisTimeout bounds the best-effort analysis call at session end.
	AnalysisTimeout time.Duration
}

// ApplyDefaults fills zero fields with defaults matching the capture wire
// protocol (16 kHz mono linear PCM).
func (c *SessionConfig) ApplyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.ChunkFrames == 0 {
		c.Audio.ChunkFrames = 8000
	}
	if c.TranscriptCharBudget == 0 {
		c.TranscriptCharBudget = 20000
	}
	if c.TranscriptMinLines == 0 {
		c.TranscriptMinLines = 50
	}
	if c.RecentCapacity == 0 {
		c.RecentCapacity = 100
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 256
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = 5 * time.Second
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.AnalysisTimeout == 0 {
		c.AnalysisTimeout = 60 * time.Second
	}
}

// FormatElapsed formats a duration as HH:MM:SS.
func FormatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
