// Package store persists conversations, messages, partners, and analysis
// results in Postgres.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recollect-ai/recolld/pkg/core/capture"
)

// Store is the shared Postgres gateway. Sessions do not use it directly;
// each acquires a dedicated Recorder handle via Acquire.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects a pool to the given database URL and verifies connectivity.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureUser seeds a minimal user row when the id is absent, so the capture
// flow works against a freshly-migrated database.
func (s *Store) EnsureUser(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, username)
		VALUES ($1, 'default_user_' || $1 || '@example.com', 'default_user_' || $1)
		ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return nil
}

// EnsurePartner seeds a placeholder partner row when the id is absent.
func (s *Store) EnsurePartner(ctx context.Context, userID, partnerID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_partners (id, user_id, name)
		VALUES ($1, $2, 'Unknown')
		ON CONFLICT (id) DO NOTHING`, partnerID, userID)
	if err != nil {
		return fmt.Errorf("ensure partner %d: %w", partnerID, err)
	}
	return nil
}

// CreateConversation creates a conversation row and returns its id.
func (s *Store) CreateConversation(ctx context.Context, userID, partnerID int64, title string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id, partner_id, title, started_at, is_analyzed)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id`, userID, partnerID, title, startedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// Acquire hands out a dedicated connection-backed Recorder for one session.
// The caller owns the handle and must Close it.
func (s *Store) Acquire(ctx context.Context) (capture.Recorder, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session handle: %w", err)
	}
	return &sessionRecorder{conn: conn, logger: s.logger}, nil
}

// sessionRecorder is the per-session persistence handle. It wraps a pooled
// connection held for the session's lifetime, so no data-layer contention
// exists between sessions.
type sessionRecorder struct {
	conn   *pgxpool.Conn
	logger *slog.Logger
}

func (r *sessionRecorder) AppendMessage(ctx context.Context, conversationID int64, sender, content string, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO messages (conversation_id, sender, content, timestamp)
		VALUES ($1, $2, $3, $4)`, conversationID, sender, content, at)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *sessionRecorder) FinishConversation(ctx context.Context, conversationID int64, endedAt time.Time, transcript string) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE conversations
		SET ended_at = $2, full_transcript = $3, updated_at = NOW()
		WHERE id = $1`, conversationID, endedAt, transcript)
	if err != nil {
		return fmt.Errorf("finish conversation: %w", err)
	}
	return nil
}

func (r *sessionRecorder) ListMessages(ctx context.Context, conversationID int64) ([]capture.StoredMessage, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT sender, content, timestamp
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []capture.StoredMessage
	for rows.Next() {
		var m capture.StoredMessage
		if err := rows.Scan(&m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdatePartnerName writes a detected name through to the partner row.
// A case-insensitive match with the current name is a no-op.
func (r *sessionRecorder) UpdatePartnerName(ctx context.Context, partnerID int64, name string) error {
	var current string
	err := r.conn.QueryRow(ctx, `
		SELECT name FROM conversation_partners WHERE id = $1`, partnerID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Warn("partner not found for name update", "partner_id", partnerID)
			return nil
		}
		return fmt.Errorf("load partner: %w", err)
	}

	if strings.EqualFold(strings.TrimSpace(current), name) {
		return nil
	}

	_, err = r.conn.Exec(ctx, `
		UPDATE conversation_partners SET name = $2, updated_at = NOW() WHERE id = $1`,
		partnerID, name)
	if err != nil {
		return fmt.Errorf("update partner name: %w", err)
	}
	r.logger.Info("partner renamed from transcript", "partner_id", partnerID, "name", name)
	return nil
}

func (r *sessionRecorder) Close() {
	r.conn.Release()
}
