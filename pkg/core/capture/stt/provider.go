// Package stt provides streaming speech-to-text over a persistent
// bidirectional connection: raw PCM frames go out, transcript events come in.
package stt

// Options configures a streaming transcription session.
type Options struct {
	SampleRate int
	Channels   int
	// Encoding is the PCM encoding name on the wire. Defaults to linear16.
	Encoding string
	// Language hints the spoken language. Empty means provider default.
	Language string
	// Punctuate asks the provider to add punctuation to transcripts.
	Punctuate bool
}

// Event is one structured message from the transcription stream.
type Event struct {
	// Type is the provider event type, e.g. "Results" or "Metadata".
	Type string
	// Transcript is the best transcript text carried by the event, if any.
	Transcript string
	// IsFinal marks the transcript as finalized, not subject to revision.
	IsFinal bool
	// Duration is the audio duration covered by the event, in seconds.
	Duration float64
}

// Final reports whether the event carries a finalized, non-empty transcript.
func (e Event) Final() bool {
	return (e.IsFinal || e.Type == "Results") && e.Transcript != ""
}

// EventStream is a live transcription stream. SendAudio is safe to call
// concurrently with reads; Events is closed when the stream ends.
type EventStream interface {
	SendAudio(frame []byte) error
	Events() <-chan Event
	Close() error
}
