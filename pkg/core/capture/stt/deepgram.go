package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramLiveURL = "wss://api.deepgram.com/v1/listen"

	// keepAliveInterval keeps the socket open across pauses in speech.
	// Deepgram closes idle connections after ~10 seconds of silence.
	keepAliveInterval = 5 * time.Second
)

// DeepgramProvider opens live transcription streams against Deepgram.
type DeepgramProvider struct {
	apiKey  string
	liveURL string
	dialer  *websocket.Dialer
}

// NewDeepgram creates a Deepgram streaming STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:  apiKey,
		liveURL: deepgramLiveURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewDeepgramWithURL creates a provider against a non-default endpoint.
func NewDeepgramWithURL(apiKey, liveURL string) *DeepgramProvider {
	p := NewDeepgram(apiKey)
	p.liveURL = liveURL
	return p
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

// liveQuery builds the /v1/listen query string for the given options.
func liveQuery(opts Options) url.Values {
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}

	q := url.Values{}
	q.Set("encoding", encoding)
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("channels", fmt.Sprintf("%d", channels))
	if opts.Punctuate {
		q.Set("punctuate", "true")
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	return q
}

// NewStream connects a live transcription stream. Audio is sent with
// SendAudio; transcript events arrive on Events until the stream ends.
func (p *DeepgramProvider) NewStream(ctx context.Context, opts Options) (EventStream, error) {
	u, err := url.Parse(p.liveURL)
	if err != nil {
		return nil, fmt.Errorf("parse live URL: %w", err)
	}
	u.RawQuery = liveQuery(opts).Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("deepgram connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("deepgram connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &LiveStream{
		conn:   conn,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go s.readLoop()
	go s.keepAliveLoop()

	return s, nil
}

// LiveStream is an open Deepgram transcription stream.
type LiveStream struct {
	conn    *websocket.Conn
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// deepgramResult is the relevant subset of a live API message.
type deepgramResult struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *LiveStream) readLoop() {
	defer func() {
		close(s.events)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg deepgramResult
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		event := Event{
			Type:     msg.Type,
			IsFinal:  msg.IsFinal,
			Duration: msg.Duration,
		}
		if len(msg.Channel.Alternatives) > 0 {
			event.Transcript = msg.Channel.Alternatives[0].Transcript
		}

		select {
		case s.events <- event:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LiveStream) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// SendAudio sends one raw PCM frame in the encoding given at stream open.
func (s *LiveStream) SendAudio(frame []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Events returns the channel of transcription events.
func (s *LiveStream) Events() <-chan Event {
	return s.events
}

// Done returns a channel closed when the stream ends.
func (s *LiveStream) Done() <-chan struct{} {
	return s.done
}

// Close requests a graceful stream shutdown and closes the connection.
func (s *LiveStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
