package capture

import (
	"strings"
	"testing"
	"time"
)

func TestTranscriptBuffer_AppendAndCompile(t *testing.T) {
	b := NewTranscriptBuffer(20000, 50, 100)

	b.Append("hello there", 5*time.Second, time.Now())
	b.Append("how are you", 65*time.Second, time.Now())

	compiled := b.Compile()
	want := "[00:00:05] hello there\n[00:01:05] how are you"
	if compiled != want {
		t.Errorf("compile = %q, want %q", compiled, want)
	}
}

func TestTranscriptBuffer_EmptyCompile(t *testing.T) {
	b := NewTranscriptBuffer(20000, 50, 100)
	if got := b.Compile(); got != "" {
		t.Errorf("empty buffer compile = %q, want empty", got)
	}
}

func TestTranscriptBuffer_BudgetEviction(t *testing.T) {
	// Tiny budget, min retention of 3 lines.
	b := NewTranscriptBuffer(100, 3, 100)

	line := strings.Repeat("x", 40)
	for i := 0; i < 10; i++ {
		b.Append(line, time.Duration(i)*time.Second, time.Now())
	}

	// Oldest lines evicted until under budget or at the minimum.
	if b.Len() > 10 {
		t.Fatalf("line count grew unexpectedly: %d", b.Len())
	}
	if b.Len() < 3 {
		t.Errorf("retained %d lines, minimum is 3", b.Len())
	}
	if b.Len() > 3 && b.CharCount() > 100 {
		t.Errorf("char count %d over budget with %d lines retained", b.CharCount(), b.Len())
	}

	// The retained lines are the newest, in order.
	compiled := b.Compile()
	if !strings.Contains(compiled, "[00:00:09]") {
		t.Error("newest line missing after eviction")
	}
	if strings.Contains(compiled, "[00:00:00]") {
		t.Error("oldest line should have been evicted")
	}
}

func TestTranscriptBuffer_EvictionKeepsMinimum(t *testing.T) {
	// Budget far smaller than any line; min retention must win.
	b := NewTranscriptBuffer(10, 5, 100)

	for i := 0; i < 8; i++ {
		b.Append(strings.Repeat("y", 50), time.Duration(i)*time.Second, time.Now())
	}

	if b.Len() != 5 {
		t.Errorf("retained %d lines, want the minimum of 5", b.Len())
	}
}

func TestTranscriptBuffer_RecentRingIndependent(t *testing.T) {
	// Aggressive eviction on the line list must not touch the ring.
	b := NewTranscriptBuffer(10, 1, 4)

	for i := 0; i < 6; i++ {
		b.Append(strings.Repeat("z", 30), time.Duration(i)*time.Second, time.Now())
	}

	recent := b.Recent(10)
	if len(recent) != 4 {
		t.Fatalf("ring holds %d entries, want capacity 4", len(recent))
	}
	if recent[len(recent)-1].Timestamp != "00:00:05" {
		t.Errorf("newest ring entry timestamp = %q, want 00:00:05", recent[len(recent)-1].Timestamp)
	}
	if recent[0].Timestamp != "00:00:02" {
		t.Errorf("oldest ring entry timestamp = %q, want 00:00:02", recent[0].Timestamp)
	}
}

func TestTranscriptBuffer_RecentSubset(t *testing.T) {
	b := NewTranscriptBuffer(20000, 50, 100)
	for i := 0; i < 5; i++ {
		b.Append("line", time.Duration(i)*time.Second, time.Now())
	}

	recent := b.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("recent(2) returned %d entries", len(recent))
	}
	if recent[0].Timestamp != "00:00:03" || recent[1].Timestamp != "00:00:04" {
		t.Errorf("recent(2) = %q, %q; want the last two entries",
			recent[0].Timestamp, recent[1].Timestamp)
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61 * time.Second, "00:01:01"},
		{3661 * time.Second, "01:01:01"},
	}
	for _, tc := range cases {
		if got := FormatElapsed(tc.d); got != tc.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
