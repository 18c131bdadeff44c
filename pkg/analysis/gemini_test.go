package analysis

import (
	"testing"

	"github.com/recollect-ai/recolld/pkg/store"
)

func TestDecodeJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{
			name:    "bare array",
			raw:     `[{"category": "interest", "fact_key": "sport", "fact_value": "climbing", "confidence": 0.8}]`,
			wantLen: 1,
		},
		{
			name: "json fenced",
			raw: "```json\n" +
				`[{"category": "personal_info", "fact_key": "occupation", "fact_value": "engineer", "confidence": 0.9},` + "\n" +
				`{"category": "preference", "fact_key": "coffee", "fact_value": "black", "confidence": 0.6}]` + "\n```",
			wantLen: 2,
		},
		{
			name:    "plain fenced",
			raw:     "```\n[]\n```",
			wantLen: 0,
		},
		{
			name:    "surrounding whitespace",
			raw:     "  \n[{\"category\": \"hobby\", \"fact_key\": \"music\", \"fact_value\": \"piano\", \"confidence\": 0.7}]\n  ",
			wantLen: 1,
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "fences only",
			raw:     "```json\n```",
			wantErr: true,
		},
		{
			name:    "prose instead of json",
			raw:     "I could not find any facts in this conversation.",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var facts []store.Fact
			err := decodeJSONArray(tc.raw, &facts)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(facts) != tc.wantLen {
				t.Errorf("decoded %d facts, want %d", len(facts), tc.wantLen)
			}
		})
	}
}

func TestDecodeJSONArrayFieldMapping(t *testing.T) {
	raw := "```json\n" +
		`[{"name": "rock climbing", "category": "hobby", "relevance": 8}]` + "\n```"

	var topics []store.Topic
	if err := decodeJSONArray(raw, &topics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("decoded %d topics, want 1", len(topics))
	}
	if topics[0].Name != "rock climbing" || topics[0].Category != "hobby" || topics[0].Relevance != 8 {
		t.Errorf("topic = %+v", topics[0])
	}
}
