package capture

import (
	"bytes"
	"sync"
	"testing"
)

func TestAudioBridge_FIFOOrder(t *testing.T) {
	b := NewAudioBridge(8)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		if !b.Enqueue(f) {
			t.Fatalf("enqueue %q failed", f)
		}
	}

	for i, want := range frames {
		got, ok := b.Take()
		if !ok {
			t.Fatalf("take %d: queue closed early", i)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("take %d: got %q, want %q", i, got, want)
		}
	}

	if b.Enqueued() != 3 {
		t.Errorf("enqueued count = %d, want 3", b.Enqueued())
	}
}

func TestAudioBridge_DropOnFull(t *testing.T) {
	b := NewAudioBridge(2)

	b.Enqueue([]byte("a"))
	b.Enqueue([]byte("b"))
	if b.Enqueue([]byte("c")) {
		t.Error("enqueue on full queue should report a drop")
	}

	if b.Dropped() != 1 {
		t.Errorf("dropped count = %d, want 1", b.Dropped())
	}
	if b.Enqueued() != 2 {
		t.Errorf("enqueued count = %d, want 2", b.Enqueued())
	}
}

func TestAudioBridge_SentinelUnblocksTake(t *testing.T) {
	b := NewAudioBridge(8)

	got := make(chan []byte, 1)
	go func() {
		frame, _ := b.Take()
		got <- frame
	}()

	b.CloseIntake()

	if frame := <-got; frame != nil {
		t.Errorf("blocked take should observe the nil sentinel, got %q", frame)
	}

	// Drained and closed afterwards.
	if _, ok := b.Take(); ok {
		t.Error("take after close+drain should report closed")
	}
}

func TestAudioBridge_EnqueueAfterClose(t *testing.T) {
	b := NewAudioBridge(4)
	b.CloseIntake()

	if b.Enqueue([]byte("late")) {
		t.Error("enqueue after close should be dropped")
	}
	if b.Dropped() == 0 {
		t.Error("late frame should be counted as dropped")
	}

	// Repeated close is safe.
	b.CloseIntake()
}

func TestAudioBridge_ConcurrentEnqueueAndClose(t *testing.T) {
	// Driver-thread enqueues racing the intake close must never land a send
	// on the closed channel.
	b := NewAudioBridge(4)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				b.Enqueue([]byte{byte(i)})
			}
		}()
	}

	close(start)
	b.CloseIntake()
	wg.Wait()

	if b.Enqueue([]byte("late")) {
		t.Error("enqueue accepted after close")
	}

	// Every frame that was accepted is still drainable.
	drained := int64(0)
	for {
		frame, ok := b.Take()
		if !ok {
			break
		}
		if frame != nil {
			drained++
		}
	}
	if drained != b.Enqueued() {
		t.Errorf("drained %d frames, enqueued %d", drained, b.Enqueued())
	}
}

func TestAudioBridge_SentinelWithQueuedFrames(t *testing.T) {
	b := NewAudioBridge(8)
	b.Enqueue([]byte("real"))
	b.CloseIntake()

	frame, ok := b.Take()
	if !ok || !bytes.Equal(frame, []byte("real")) {
		t.Fatalf("queued frame should still be delivered, got %q ok=%v", frame, ok)
	}
}
