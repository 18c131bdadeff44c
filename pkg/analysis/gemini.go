// Package analysis extracts facts, topics, and a summary from a completed
// conversation using Gemini.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/recollect-ai/recolld/pkg/store"
)

const defaultModel = "gemini-2.0-flash"

// Analyzer runs post-conversation analysis and persists the results.
type Analyzer struct {
	client *genai.Client
	model  string
	store  *store.Store
	logger *slog.Logger
}

// New creates an analyzer. An empty model selects the default.
func New(ctx context.Context, apiKey, model string, st *store.Store, logger *slog.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Analyzer{client: client, model: model, store: st, logger: logger}, nil
}

// AnalyzeConversation extracts facts and topics and writes a summary for the
// conversation. Sub-step failures are logged; the remaining steps still run.
func (a *Analyzer) AnalyzeConversation(ctx context.Context, conversationID int64) error {
	info, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	lines, err := a.store.ListMessageLines(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		a.logger.Warn("no messages to analyze", "conversation_id", conversationID)
		return nil
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.Sender)
		b.WriteString(": ")
		b.WriteString(line.Content)
		b.WriteString("\n")
	}
	conversationText := b.String()

	facts := a.extractFacts(ctx, conversationText)
	if len(facts) > 0 {
		if err := a.store.SaveFacts(ctx, info.PartnerID, conversationID, facts); err != nil {
			a.logger.Error("save facts", "conversation_id", conversationID, "error", err)
		}
	}

	topics := a.identifyTopics(ctx, conversationText)
	for _, topic := range topics {
		if err := a.store.LinkTopic(ctx, conversationID, topic); err != nil {
			a.logger.Error("link topic", "topic", topic.Name, "error", err)
		}
	}

	summary := a.generateSummary(ctx, conversationText)
	if err := a.store.MarkAnalyzed(ctx, conversationID, summary); err != nil {
		return err
	}

	a.logger.Info("conversation analyzed",
		"conversation_id", conversationID,
		"facts", len(facts),
		"topics", len(topics))
	return nil
}

func (a *Analyzer) extractFacts(ctx context.Context, conversationText string) []store.Fact {
	prompt := fmt.Sprintf(`Analyze the following conversation and extract key facts about the person speaking.
Focus on personal information, interests, preferences, life events, relationships, and goals.

For each fact provide a category (e.g. 'personal_info', 'interest', 'preference',
'life_event', 'relationship'), a fact_key, a fact_value, and a confidence between 0.0 and 1.0.

Format as a JSON array:
[{"category": "personal_info", "fact_key": "occupation", "fact_value": "software engineer", "confidence": 0.9}]

Conversation:
%s

Extract facts (return only a valid JSON array):`, conversationText)

	raw, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("fact extraction failed", "error", err)
		return nil
	}

	var facts []store.Fact
	if err := decodeJSONArray(raw, &facts); err != nil {
		a.logger.Error("fact extraction returned unparseable JSON", "error", err)
		return nil
	}
	return facts
}

func (a *Analyzer) identifyTopics(ctx context.Context, conversationText string) []store.Topic {
	prompt := fmt.Sprintf(`Identify the main topics discussed in the following conversation.

For each topic provide a name, a category (e.g. 'work', 'hobby', 'family'),
and a relevance from 1 to 10.

Format as a JSON array:
[{"name": "rock climbing", "category": "hobby", "relevance": 8}]

Conversation:
%s

Identify topics (return only a valid JSON array):`, conversationText)

	raw, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("topic identification failed", "error", err)
		return nil
	}

	var topics []store.Topic
	if err := decodeJSONArray(raw, &topics); err != nil {
		a.logger.Error("topic identification returned unparseable JSON", "error", err)
		return nil
	}
	return topics
}

func (a *Analyzer) generateSummary(ctx context.Context, conversationText string) string {
	prompt := fmt.Sprintf(`Write a concise 2-3 sentence summary of the following conversation,
capturing what was discussed and anything notable about the other person.

Conversation:
%s

Summary:`, conversationText)

	raw, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("summary generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(raw)
}

func (a *Analyzer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// decodeJSONArray parses a model response into out, tolerating markdown code
// fences around the JSON.
func decodeJSONArray(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal([]byte(cleaned), out)
}
