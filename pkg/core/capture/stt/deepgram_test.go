package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLiveQueryDefaults(t *testing.T) {
	q := liveQuery(Options{Punctuate: true})
	if got := q.Get("encoding"); got != "linear16" {
		t.Errorf("encoding = %q, want linear16", got)
	}
	if got := q.Get("sample_rate"); got != "16000" {
		t.Errorf("sample_rate = %q, want 16000", got)
	}
	if got := q.Get("channels"); got != "1" {
		t.Errorf("channels = %q, want 1", got)
	}
	if got := q.Get("punctuate"); got != "true" {
		t.Errorf("punctuate = %q, want true", got)
	}
	if q.Has("language") {
		t.Error("language must be omitted when unset")
	}
}

func TestLiveQueryExplicit(t *testing.T) {
	q := liveQuery(Options{
		SampleRate: 44100,
		Channels:   2,
		Encoding:   "mulaw",
		Language:   "en-US",
	})
	if got := q.Get("sample_rate"); got != "44100" {
		t.Errorf("sample_rate = %q", got)
	}
	if got := q.Get("channels"); got != "2" {
		t.Errorf("channels = %q", got)
	}
	if got := q.Get("encoding"); got != "mulaw" {
		t.Errorf("encoding = %q", got)
	}
	if got := q.Get("language"); got != "en-US" {
		t.Errorf("language = %q", got)
	}
	if q.Has("punctuate") {
		t.Error("punctuate must be omitted when false")
	}
}

func TestEventFinal(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"finalized with text", Event{Type: "Results", IsFinal: true, Transcript: "hello"}, true},
		{"results without final flag", Event{Type: "Results", Transcript: "hello"}, true},
		{"interim", Event{Type: "Results", IsFinal: false, Transcript: ""}, false},
		{"final but empty", Event{IsFinal: true, Transcript: ""}, false},
		{"metadata", Event{Type: "Metadata", Transcript: "hello"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.Final(); got != tc.want {
				t.Errorf("Final() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeepgramResultDecoding(t *testing.T) {
	raw := `{
		"type": "Results",
		"is_final": true,
		"duration": 1.52,
		"channel": {
			"alternatives": [{"transcript": "hello there"}]
		}
	}`
	var msg deepgramResult
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "Results" || !msg.IsFinal || msg.Duration != 1.52 {
		t.Errorf("decoded header fields wrong: %+v", msg)
	}
	if len(msg.Channel.Alternatives) != 1 || msg.Channel.Alternatives[0].Transcript != "hello there" {
		t.Errorf("decoded alternatives wrong: %+v", msg.Channel)
	}
}

// fakeDeepgram upgrades the connection, records the handshake, echoes one
// result per binary frame, and exits on CloseStream.
func fakeDeepgram(t *testing.T, gotAuth *string, gotQuery *string) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		*gotAuth = r.Header.Get("Authorization")
		*gotQuery = r.URL.RawQuery

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				result := map[string]any{
					"type":     "Results",
					"is_final": true,
					"channel": map[string]any{
						"alternatives": []map[string]any{
							{"transcript": "echo " + string(data)},
						},
					},
				}
				if err := conn.WriteJSON(result); err != nil {
					return
				}
			case websocket.TextMessage:
				if strings.Contains(string(data), "CloseStream") {
					return
				}
			}
		}
	}
}

func TestLiveStreamRoundTrip(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(fakeDeepgram(t, &gotAuth, &gotQuery))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	provider := NewDeepgramWithURL("secret-key", wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := provider.NewStream(ctx, Options{Punctuate: true})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer stream.Close()

	if gotAuth != "Token secret-key" {
		t.Errorf("Authorization = %q, want Token secret-key", gotAuth)
	}
	if !strings.Contains(gotQuery, "encoding=linear16") || !strings.Contains(gotQuery, "punctuate=true") {
		t.Errorf("query = %q, missing expected parameters", gotQuery)
	}

	if err := stream.SendAudio([]byte("pcm")); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case event := <-stream.Events():
		if !event.Final() {
			t.Errorf("event not final: %+v", event)
		}
		if event.Transcript != "echo pcm" {
			t.Errorf("transcript = %q, want echo pcm", event.Transcript)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no transcription event arrived")
	}
}

func TestLiveStreamCloseIsIdempotent(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(fakeDeepgram(t, &gotAuth, &gotQuery))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream, err := NewDeepgramWithURL("k", wsURL).NewStream(context.Background(), Options{})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}

	stream.Close()
	if err := stream.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if err := stream.SendAudio([]byte("late")); err == nil {
		t.Error("send after close must fail")
	}

	ls := stream.(*LiveStream)
	select {
	case <-ls.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not report done after close")
	}
}
