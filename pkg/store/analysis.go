package store

import (
	"context"
	"fmt"
	"time"
)

// ConversationInfo is the subset of a conversation row the analyzer needs.
type ConversationInfo struct {
	ID        int64
	UserID    int64
	PartnerID int64
}

// GetConversation loads the analyzer-relevant fields of a conversation.
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (ConversationInfo, error) {
	var info ConversationInfo
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, partner_id FROM conversations WHERE id = $1`,
		conversationID).Scan(&info.ID, &info.UserID, &info.PartnerID)
	if err != nil {
		return ConversationInfo{}, fmt.Errorf("get conversation %d: %w", conversationID, err)
	}
	return info, nil
}

// MessageLine is one "sender: content" pair for building analysis prompts.
type MessageLine struct {
	Sender  string
	Content string
}

// ListMessageLines returns a conversation's messages in timestamp order.
func (s *Store) ListMessageLines(ctx context.Context, conversationID int64) ([]MessageLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sender, content
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list message lines: %w", err)
	}
	defer rows.Close()

	var lines []MessageLine
	for rows.Next() {
		var l MessageLine
		if err := rows.Scan(&l.Sender, &l.Content); err != nil {
			return nil, fmt.Errorf("scan message line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Fact is one extracted fact about a partner.
type Fact struct {
	Category   string  `json:"category"`
	Key        string  `json:"fact_key"`
	Value      string  `json:"fact_value"`
	Confidence float64 `json:"confidence"`
}

// SaveFacts inserts extracted facts for a partner and conversation.
func (s *Store) SaveFacts(ctx context.Context, partnerID, conversationID int64, facts []Fact) error {
	for _, f := range facts {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO extracted_facts
				(partner_id, conversation_id, category, fact_key, fact_value, confidence, is_current, extracted_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`,
			partnerID, conversationID, f.Category, f.Key, f.Value, f.Confidence, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("save fact %q: %w", f.Key, err)
		}
	}
	return nil
}

// Topic is one identified conversation topic.
type Topic struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Relevance int    `json:"relevance"`
}

// LinkTopic upserts a topic by name and links it to the conversation with a
// relevance score.
func (s *Store) LinkTopic(ctx context.Context, conversationID int64, topic Topic) error {
	var topicID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO topics (name, category)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET category = COALESCE(topics.category, EXCLUDED.category)
		RETURNING id`, topic.Name, nullable(topic.Category)).Scan(&topicID)
	if err != nil {
		return fmt.Errorf("upsert topic %q: %w", topic.Name, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_topics (conversation_id, topic_id, relevance_score)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, topic_id) DO UPDATE SET relevance_score = EXCLUDED.relevance_score`,
		conversationID, topicID, topic.Relevance)
	if err != nil {
		return fmt.Errorf("link topic %q: %w", topic.Name, err)
	}
	return nil
}

// MarkAnalyzed records the summary and flips the analyzed flag.
func (s *Store) MarkAnalyzed(ctx context.Context, conversationID int64, summary string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET summary = $2, is_analyzed = TRUE, updated_at = NOW()
		WHERE id = $1`, conversationID, summary)
	if err != nil {
		return fmt.Errorf("mark analyzed: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
