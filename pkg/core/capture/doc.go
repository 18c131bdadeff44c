// Package capture implements live conversation-capture sessions.
//
// A session bridges two execution contexts: the audio driver thread, which
// delivers raw PCM frames through a non-blocking callback, and the session's
// own goroutines, which run the network and persistence pipelines. The only
// crossing point between the two is the AudioBridge's thread-safe enqueue.
//
// # Architecture
//
//   - Session: per-conversation state machine owning the microphone, the
//     transcription stream, and both pipelines
//   - Manager: registry that creates, tracks, and tears down sessions
//   - AudioBridge: driver-thread to sender-pipeline frame handoff
//   - TranscriptBuffer: char-budgeted line store plus a recent-entries ring
//   - DetectName: colloquial-pattern partner name extraction
//
// # Data Flow
//
//	Mic callback → AudioBridge → sender → STT stream
//	STT events → receiver → TranscriptBuffer + message persist + name detect
//
// # State Machine
//
//	CREATED → STARTING → RUNNING → STOPPING → STOPPED
//	              │          │
//	              └──────────┴──→ FAILED
//
// Stopped and Failed are terminal. A stopped session is never restarted; a
// new one must be created.
package capture
