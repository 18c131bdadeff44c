package capture

import (
	"strings"
	"sync"
	"time"
)

// TranscriptEntry is one finalized fragment as kept in the recent ring.
type TranscriptEntry struct {
	// Timestamp is the elapsed offset formatted as HH:MM:SS.
	Timestamp string `json:"timestamp"`
	// Elapsed is the offset from session start in seconds.
	Elapsed float64 `json:"elapsed"`
	Text    string  `json:"text"`
	// At is the wall-clock time the fragment arrived.
	At time.Time `json:"datetime"`
}

// TranscriptBuffer accumulates formatted transcript lines under a character
// budget, and keeps a separate fixed-size ring of recent raw entries so
// recent-lookup is unaffected by eviction of the full transcript.
type TranscriptBuffer struct {
	mu sync.Mutex

	lines     []string
	charCount int

	budget   int
	minLines int

	ring    []TranscriptEntry
	ringCap int
}

// NewTranscriptBuffer creates a buffer with the given character budget,
// minimum retained line count, and recent-ring capacity.
func NewTranscriptBuffer(budget, minLines, ringCap int) *TranscriptBuffer {
	if budget <= 0 {
		budget = 20000
	}
	if minLines <= 0 {
		minLines = 50
	}
	if ringCap <= 0 {
		ringCap = 100
	}
	return &TranscriptBuffer{
		budget:   budget,
		minLines: minLines,
		ringCap:  ringCap,
	}
}

// Append records a finalized fragment. The compiled line is formatted as
// "[HH:MM:SS] text". Oldest lines are evicted once the character budget is
// exceeded and more than the minimum line count is retained.
func (b *TranscriptBuffer) Append(text string, elapsed time.Duration, at time.Time) TranscriptEntry {
	entry := TranscriptEntry{
		Timestamp: FormatElapsed(elapsed),
		Elapsed:   elapsed.Seconds(),
		Text:      text,
		At:        at,
	}

	line := "[" + entry.Timestamp + "] " + strings.TrimSpace(text)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	b.charCount += len(line) + 1
	for b.charCount > b.budget && len(b.lines) > b.minLines {
		removed := b.lines[0]
		b.lines = b.lines[1:]
		b.charCount -= len(removed) + 1
	}

	b.ring = append(b.ring, entry)
	if len(b.ring) > b.ringCap {
		b.ring = b.ring[len(b.ring)-b.ringCap:]
	}

	return entry
}

// Recent returns the last n entries of the ring, oldest first.
func (b *TranscriptBuffer) Recent(n int) []TranscriptEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.ring) {
		n = len(b.ring)
	}
	out := make([]TranscriptEntry, n)
	copy(out, b.ring[len(b.ring)-n:])
	return out
}

// Len returns the number of retained compiled lines.
func (b *TranscriptBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Count returns the number of entries in the recent ring.
func (b *TranscriptBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// CharCount returns the live character count of the retained lines.
func (b *TranscriptBuffer) CharCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.charCount
}

// Compile joins all retained lines in order. Returns "" if nothing is retained.
func (b *TranscriptBuffer) Compile() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
