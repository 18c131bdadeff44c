package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recollect-ai/recolld/pkg/core/capture/stt"
)

// MicDevice is an acquired capture device.
type MicDevice interface {
	// Start begins delivering frames to the open callback.
	Start() error
	// Stop halts capture and releases the device.
	Stop()
}

// Microphone acquires capture devices. onFrame runs on the audio driver
// thread and must not block.
type Microphone interface {
	Open(cfg AudioConfig, onFrame func([]byte)) (MicDevice, error)
}

// Transcriber opens live transcription streams.
type Transcriber interface {
	NewStream(ctx context.Context, opts stt.Options) (stt.EventStream, error)
}

// StoredMessage is a persisted transcript fragment, as read back for the
// transcript fallback path.
type StoredMessage struct {
	Sender    string
	Content   string
	Timestamp time.Time
}

// Recorder is a session's exclusively-owned persistence handle.
type Recorder interface {
	AppendMessage(ctx context.Context, conversationID int64, sender, content string, at time.Time) error
	FinishConversation(ctx context.Context, conversationID int64, endedAt time.Time, transcript string) error
	ListMessages(ctx context.Context, conversationID int64) ([]StoredMessage, error)
	UpdatePartnerName(ctx context.Context, partnerID int64, name string) error
	Close()
}

// Analyzer runs post-conversation analysis. Failures are logged, never fatal.
type Analyzer interface {
	AnalyzeConversation(ctx context.Context, conversationID int64) error
}

// MessageSender is the sender recorded on every captured fragment. The
// microphone hears both parties; attribution happens downstream.
const MessageSender = "user"

// Session captures one conversation: it owns the microphone device, the
// transcription stream, the audio handoff bridge, and the transcript buffer,
// and produces persisted message rows plus a compiled transcript.
type Session struct {
	id             string
	userID         int64
	partnerID      int64
	conversationID int64

	cfg         SessionConfig
	mic         Microphone
	transcriber Transcriber
	recorder    Recorder
	analyzer    Analyzer
	logger      *slog.Logger

	bridge *AudioBridge
	buffer *TranscriptBuffer

	state      atomic.Int32
	running    atomic.Bool
	runStarted atomic.Bool
	startedAt  time.Time

	// ready is closed once the microphone is active, or startup has failed.
	ready    chan struct{}
	startErr error

	// done is closed when the run loop has fully exited.
	done     chan struct{}
	stopOnce sync.Once

	// resMu guards the device and stream handles, which are set by the run
	// goroutine and released from whichever context calls Stop. stopped marks
	// that teardown has claimed the handles: a resource acquired after that
	// point must be released by the run goroutine itself, never published.
	resMu   sync.Mutex
	device  MicDevice
	stream  stt.EventStream
	stopped bool

	messageCount atomic.Int64
	chunksSent   atomic.Int64

	// endedNanos freezes the elapsed clock once the session ends.
	endedNanos atomic.Int64

	nameMu         sync.Mutex
	detectedName   string
	nameDetectedAt time.Time
}

// NewSession creates a session bound to an already-created conversation row.
func NewSession(
	sessionID string,
	userID, partnerID, conversationID int64,
	cfg SessionConfig,
	mic Microphone,
	transcriber Transcriber,
	recorder Recorder,
	analyzer Analyzer,
	logger *slog.Logger,
) *Session {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:             sessionID,
		userID:         userID,
		partnerID:      partnerID,
		conversationID: conversationID,
		cfg:            cfg,
		mic:            mic,
		transcriber:    transcriber,
		recorder:       recorder,
		analyzer:       analyzer,
		logger:         logger.With("session_id", sessionID, "conversation_id", conversationID),
		bridge:         NewAudioBridge(cfg.QueueCapacity),
		buffer:         NewTranscriptBuffer(cfg.TranscriptCharBudget, cfg.TranscriptMinLines, cfg.RecentCapacity),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	s.state.Store(int32(StateCreated))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// ConversationID returns the bound conversation id.
func (s *Session) ConversationID() int64 {
	return s.conversationID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the session is still capturing.
func (s *Session) IsRunning() bool {
	return s.running.Load()
}

// Ready returns a channel closed once the microphone is active or startup
// has failed. StartErr distinguishes the two after it closes.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// StartErr returns the startup failure, if any. Valid only after Ready.
func (s *Session) StartErr() error {
	return s.startErr
}

// Done returns a channel closed when the run loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// onFrame is the capture callback, driven by the audio driver thread. It must
// never block: the only work here is the thread-safe handoff to the bridge.
func (s *Session) onFrame(frame []byte) {
	if !s.running.Load() {
		return
	}
	s.bridge.Enqueue(frame)
}

// Run acquires the microphone, connects the transcription stream, and drives
// the sender and receiver pipelines until stopped. It is launched on its own
// goroutine by the manager and returns when both pipelines have ended.
func (s *Session) Run(ctx context.Context) error {
	if !s.runStarted.CompareAndSwap(false, true) {
		return fmt.Errorf("session already started")
	}
	defer close(s.done)

	s.state.Store(int32(StateStarting))
	s.startedAt = time.Now()
	s.running.Store(true)

	device, err := s.mic.Open(s.cfg.Audio, s.onFrame)
	if err != nil {
		return s.failStartup(NewDeviceError("no microphone input available", err))
	}
	if err := device.Start(); err != nil {
		device.Stop()
		return s.failStartup(NewDeviceError("microphone failed to start", err))
	}
	s.resMu.Lock()
	if s.stopped {
		// Teardown already ran while the device was coming up. Publishing it
		// now would leak it forever; release it here and bail out.
		s.resMu.Unlock()
		device.Stop()
		s.logger.Warn("session stopped before the microphone came up")
		s.running.Store(false)
		s.startErr = NewDeviceError("session stopped before the microphone came up", nil)
		close(s.ready)
		return nil
	}
	s.device = device
	s.resMu.Unlock()
	s.logger.Info("microphone active",
		"sample_rate", s.cfg.Audio.SampleRate,
		"channels", s.cfg.Audio.Channels)

	// The microphone is live; creation can complete while the stream dials.
	close(s.ready)

	stream, err := s.transcriber.NewStream(ctx, stt.Options{
		SampleRate: s.cfg.Audio.SampleRate,
		Channels:   s.cfg.Audio.Channels,
		Encoding:   "linear16",
		Punctuate:  true,
	})
	if err != nil {
		s.logger.Error("transcription connect failed", "error", err)
		s.running.Store(false)
		s.resMu.Lock()
		stopped := s.stopped
		if s.device != nil {
			s.device.Stop()
			s.device = nil
		}
		s.resMu.Unlock()
		if !stopped {
			s.state.Store(int32(StateFailed))
		}
		return NewNetworkError("transcription connect failed", err)
	}
	s.resMu.Lock()
	if s.stopped {
		// Teardown claimed the handles while the dial was in flight.
		s.resMu.Unlock()
		stream.Close()
		s.logger.Warn("session stopped before the transcription stream connected")
		s.running.Store(false)
		return nil
	}
	s.stream = stream
	s.resMu.Unlock()
	s.state.Store(int32(StateRunning))
	s.logger.Info("session running")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sendLoop()
	}()
	go func() {
		defer wg.Done()
		s.receiveLoop(ctx)
	}()
	wg.Wait()

	// Transcription capability is over; stop feeding the queue.
	s.running.Store(false)
	return nil
}

// failStartup records a startup error, moves to Failed, and unblocks creation.
func (s *Session) failStartup(err error) error {
	s.logger.Error("session startup failed", "error", err)
	s.startErr = err
	s.endedNanos.Store(time.Now().UnixNano())
	s.running.Store(false)
	s.state.Store(int32(StateFailed))
	close(s.ready)
	return err
}

// sendLoop forwards captured frames to the transcription stream in arrival
// order. A send failure ends the pipeline; remaining audio stays queued.
func (s *Session) sendLoop() {
	for {
		frame, ok := s.bridge.Take()
		if !ok {
			return
		}
		if frame == nil {
			// Shutdown sentinel: re-check the running flag.
			if !s.running.Load() {
				return
			}
			continue
		}
		if !s.running.Load() {
			return
		}
		if err := s.stream.SendAudio(frame); err != nil {
			s.logger.Error("audio send failed", "error", err)
			return
		}
		s.chunksSent.Add(1)
	}
}

// receiveLoop consumes transcription events until the stream ends. Finalized
// fragments are buffered, persisted, and scanned for the partner's name, in
// arrival order.
func (s *Session) receiveLoop(ctx context.Context) {
	for event := range s.stream.Events() {
		if !s.running.Load() {
			return
		}
		if !event.Final() {
			continue
		}
		text := strings.TrimSpace(event.Transcript)
		if text == "" {
			continue
		}

		elapsed := time.Since(s.startedAt)
		entry := s.buffer.Append(text, elapsed, time.Now().UTC())
		s.logger.Info("transcript", "timestamp", entry.Timestamp, "text", text)

		if err := s.recorder.AppendMessage(ctx, s.conversationID, MessageSender, text, entry.At); err != nil {
			// At-most-once loss is acceptable; capture continues.
			s.logger.Error("message persist failed", "error", err)
		} else {
			s.messageCount.Add(1)
		}

		s.detectPartnerName(ctx, text)
	}
}

// detectPartnerName commits the first valid detected name for the session.
// Later fragments are not re-evaluated once a name has been committed.
func (s *Session) detectPartnerName(ctx context.Context, text string) {
	s.nameMu.Lock()
	already := s.detectedName != ""
	s.nameMu.Unlock()
	if already {
		return
	}

	name := DetectName(text)
	if name == "" {
		return
	}

	if err := s.recorder.UpdatePartnerName(ctx, s.partnerID, name); err != nil {
		s.logger.Error("partner name update failed", "name", name, "error", err)
		return
	}

	s.nameMu.Lock()
	s.detectedName = name
	s.nameDetectedAt = time.Now().UTC()
	s.nameMu.Unlock()
	s.logger.Info("partner name detected", "name", name)
}

// DetectedName returns the committed partner name, or "".
func (s *Session) DetectedName() string {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	return s.detectedName
}

// Stop tears the session down: it stops capture, unblocks both pipelines,
// finalizes the conversation record, and fires best-effort analysis. Safe to
// call repeatedly; every step is skipped for resources never acquired.
func (s *Session) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.doStop(ctx)
	})
}

func (s *Session) doStop(ctx context.Context) {
	state := s.State()
	if state == StateStopped {
		return
	}
	if state != StateFailed {
		s.state.Store(int32(StateStopping))
	}
	s.logger.Info("stopping session")
	s.running.Store(false)

	s.resMu.Lock()
	s.stopped = true
	device := s.device
	s.device = nil
	stream := s.stream
	s.resMu.Unlock()

	if device != nil {
		device.Stop()
	}

	// The sentinel unblocks a sender parked on an empty queue.
	s.bridge.CloseIntake()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug("stream close", "error", err)
		}
	}

	// Let in-flight fragments land before compiling, bounded.
	if s.runStarted.Load() {
		select {
		case <-s.done:
		case <-time.After(s.cfg.StopTimeout):
			s.logger.Warn("pipelines did not drain before timeout")
		}
	}

	endedAt := time.Now().UTC()
	s.endedNanos.Store(endedAt.UnixNano())
	transcript := s.compileTranscript(ctx)
	if err := s.recorder.FinishConversation(ctx, s.conversationID, endedAt, transcript); err != nil {
		s.logger.Error("conversation finalize failed", "error", err)
	} else {
		lines := 0
		if transcript != "" {
			lines = strings.Count(transcript, "\n") + 1
		}
		s.logger.Info("conversation ended",
			"duration", FormatElapsed(endedAt.Sub(s.startedAt)),
			"transcript_lines", lines)
	}

	s.runAnalysis()

	s.recorder.Close()
	if s.State() != StateFailed {
		s.state.Store(int32(StateStopped))
	}
}

// compileTranscript prefers the in-memory buffered lines and falls back to
// re-reading persisted messages when nothing was buffered this run.
func (s *Session) compileTranscript(ctx context.Context) string {
	if compiled := s.buffer.Compile(); compiled != "" {
		return compiled
	}

	messages, err := s.recorder.ListMessages(ctx, s.conversationID)
	if err != nil {
		s.logger.Error("message reload for transcript failed", "error", err)
		return ""
	}
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		sender := msg.Sender
		if sender == "" {
			sender = "speaker"
		}
		sender = strings.ToUpper(sender[:1]) + sender[1:]
		if msg.Timestamp.IsZero() {
			lines = append(lines, fmt.Sprintf("[%s]: %s", sender, msg.Content))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s [%s]: %s", msg.Timestamp.Format(time.RFC3339), sender, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// runAnalysis fires the analysis gateway once, best-effort.
func (s *Session) runAnalysis() {
	if s.analyzer == nil {
		s.logger.Warn("analyzer not configured; skipping conversation analysis")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AnalysisTimeout)
	defer cancel()

	if err := s.analyzer.AnalyzeConversation(ctx, s.conversationID); err != nil {
		s.logger.Error("conversation analysis failed", "error", err)
		return
	}
	s.logger.Info("conversation analysis complete")
}

// Recent returns the last n entries of the recent-transcripts ring.
func (s *Session) Recent(n int) []TranscriptEntry {
	return s.buffer.Recent(n)
}

// Stats is a snapshot of a session's public statistics.
type Stats struct {
	SessionID           string  `json:"session_id"`
	UserID              int64   `json:"user_id"`
	PartnerID           int64   `json:"partner_id"`
	ConversationID      int64   `json:"conversation_id"`
	State               string  `json:"state"`
	IsRunning           bool    `json:"is_running"`
	ElapsedSeconds      float64 `json:"elapsed_seconds"`
	ElapsedFormatted    string  `json:"elapsed_formatted"`
	MessageCount        int64   `json:"message_count"`
	TranscriptCount     int     `json:"transcript_count"`
	ChunksEnqueued      int64   `json:"chunks_enqueued"`
	ChunksSent          int64   `json:"chunks_sent"`
	DetectedPartnerName string  `json:"detected_partner_name,omitempty"`
}

// Stats reads only published counters; it never blocks on pipeline state.
func (s *Session) Stats() Stats {
	var elapsed time.Duration
	if !s.startedAt.IsZero() {
		if ended := s.endedNanos.Load(); ended > 0 {
			elapsed = time.Unix(0, ended).Sub(s.startedAt)
		} else {
			elapsed = time.Since(s.startedAt)
		}
	}
	return Stats{
		SessionID:           s.id,
		UserID:              s.userID,
		PartnerID:           s.partnerID,
		ConversationID:      s.conversationID,
		State:               s.State().String(),
		IsRunning:           s.running.Load(),
		ElapsedSeconds:      elapsed.Seconds(),
		ElapsedFormatted:    FormatElapsed(elapsed),
		MessageCount:        s.messageCount.Load(),
		TranscriptCount:     s.buffer.Count(),
		ChunksEnqueued:      s.bridge.Enqueued(),
		ChunksSent:          s.chunksSent.Load(),
		DetectedPartnerName: s.DetectedName(),
	}
}
