package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is the persistence gateway the manager creates conversations through.
// Acquire hands out a dedicated Recorder per session; no handle is shared
// across sessions.
type Store interface {
	CreateConversation(ctx context.Context, userID, partnerID int64, title string, startedAt time.Time) (int64, error)
	Acquire(ctx context.Context) (Recorder, error)
}

// TranscriberFactory builds a transcription client from a per-request
// credential.
type TranscriberFactory func(credential string) Transcriber

// Manager is the registry of active capture sessions. All registry access is
// serialized behind a single mutex; per-session statistics reads are
// lock-free so snapshots never block on a session's internals.
type Manager struct {
	cfg         SessionConfig
	store       Store
	mic         Microphone
	analyzer    Analyzer
	transcriber TranscriberFactory
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	// pending reserves ids for creations in flight, so two concurrent
	// creates with the same id cannot both win.
	pending map[string]struct{}
}

// NewManager creates a session manager. The transcriber factory must not be
// nil; analyzer may be nil (analysis is then skipped with a log line).
func NewManager(
	cfg SessionConfig,
	store Store,
	mic Microphone,
	transcriber TranscriberFactory,
	analyzer Analyzer,
	logger *slog.Logger,
) *Manager {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		store:       store,
		mic:         mic,
		analyzer:    analyzer,
		transcriber: transcriber,
		logger:      logger,
		sessions:    make(map[string]*Session),
		pending:     make(map[string]struct{}),
	}
}

// Create starts a new capture session: it creates the conversation record,
// launches the session on its own goroutine, waits a bounded interval for the
// microphone to report active, and registers the session. On any failure
// nothing is left registered.
func (m *Manager) Create(ctx context.Context, sessionID string, userID, partnerID int64, credential string) (Stats, error) {
	if credential == "" {
		return Stats{}, NewConfigurationError("transcription credential is not configured")
	}
	if sessionID == "" {
		return Stats{}, NewConfigurationError("session id must not be empty")
	}

	if err := m.reserve(sessionID); err != nil {
		return Stats{}, err
	}

	conversationID, err := m.store.CreateConversation(ctx, userID, partnerID, "Session "+sessionID, time.Now().UTC())
	if err != nil {
		m.release(sessionID)
		return Stats{}, NewPersistenceError("create conversation", err)
	}

	recorder, err := m.store.Acquire(ctx)
	if err != nil {
		m.release(sessionID)
		return Stats{}, NewPersistenceError("acquire session store handle", err)
	}

	sess := NewSession(
		sessionID,
		userID, partnerID, conversationID,
		m.cfg,
		m.mic,
		m.transcriber(credential),
		recorder,
		m.analyzer,
		m.logger,
	)

	// The session outlives the create request.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if err := sess.Run(runCtx); err != nil {
			m.logger.Error("session run ended with error", "session_id", sessionID, "error", err)
		}
	}()

	select {
	case <-sess.Ready():
		if startErr := sess.StartErr(); startErr != nil {
			sess.Stop(runCtx)
			m.release(sessionID)
			return Stats{}, startErr
		}
	case <-time.After(m.cfg.StartTimeout):
		sess.Stop(runCtx)
		m.release(sessionID)
		return Stats{}, NewDeviceError("microphone did not become active in time", nil)
	}

	m.mu.Lock()
	delete(m.pending, sessionID)
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", sessionID, "conversation_id", conversationID)
	return sess.Stats(), nil
}

// reserve claims a session id for a creation in flight.
func (m *Manager) reserve(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return NewDuplicateSessionError(sessionID)
	}
	if _, exists := m.pending[sessionID]; exists {
		return NewDuplicateSessionError(sessionID)
	}
	m.pending[sessionID] = struct{}{}
	return nil
}

func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.pending, sessionID)
	m.mu.Unlock()
}

// Get returns a snapshot of one session's statistics.
func (m *Manager) Get(sessionID string) (Stats, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Stats{}, NewNotFoundError(sessionID)
	}
	return sess.Stats(), nil
}

// Recent returns the last n recent-transcript entries of one session.
func (m *Manager) Recent(sessionID string, n int) ([]TranscriptEntry, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, NewNotFoundError(sessionID)
	}
	return sess.Recent(n), nil
}

// List returns a snapshot of every registered session's statistics.
func (m *Manager) List() []Stats {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	stats := make([]Stats, 0, len(sessions))
	for _, sess := range sessions {
		stats = append(stats, sess.Stats())
	}
	return stats
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stop stops and unregisters a session. The registry entry is claimed before
// teardown, so a concurrent second stop observes not-found immediately. The
// join on the session's run loop is bounded; a session that fails to drain in
// time is logged and removed regardless.
func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return NewNotFoundError(sessionID)
	}

	sess.Stop(ctx)

	select {
	case <-sess.Done():
	case <-time.After(m.cfg.StopTimeout):
		m.logger.Warn("session did not terminate before timeout", "session_id", sessionID)
	}

	m.logger.Info("session stopped", "session_id", sessionID)
	return nil
}

// StopAll stops every registered session, tolerating individual failures.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Error("stop session", "session_id", id, "error", err)
		}
	}
}

// String describes the manager for debugging.
func (m *Manager) String() string {
	return fmt.Sprintf("capture.Manager(%d sessions)", m.Count())
}
