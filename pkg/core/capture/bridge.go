package capture

import (
	"sync"
	"sync/atomic"
)

// AudioBridge hands raw PCM frames from the audio driver callback to the
// sender pipeline. Enqueue is safe to call from the driver thread and never
// blocks; Take blocks until a frame or the shutdown sentinel arrives.
type AudioBridge struct {
	frames chan []byte

	// mu orders in-flight sends against the channel close: Enqueue holds a
	// read lock around its send, CloseIntake takes the write lock before
	// closing, so a send can never land on a closed channel.
	mu        sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once

	enqueued atomic.Int64
	dropped  atomic.Int64
}

// NewAudioBridge creates a bridge with the given queue capacity.
func NewAudioBridge(capacity int) *AudioBridge {
	if capacity <= 0 {
		capacity = 256
	}
	return &AudioBridge{
		frames: make(chan []byte, capacity),
	}
}

// Enqueue hands a frame to the sender pipeline without blocking. If the queue
// is full the frame is dropped and counted; the capture callback must never
// stall the driver thread.
func (b *AudioBridge) Enqueue(frame []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed.Load() {
		b.dropped.Add(1)
		return false
	}

	select {
	case b.frames <- frame:
		b.enqueued.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Take returns the next frame in enqueue order. It returns nil, false once
// the intake is closed and the queue is drained; a nil sentinel frame is
// reported as nil, true so a blocked sender can re-check its running flag.
func (b *AudioBridge) Take() ([]byte, bool) {
	frame, ok := <-b.frames
	return frame, ok
}

// CloseIntake pushes a nil sentinel to wake a blocked Take and closes the
// queue to further enqueues. Safe to call more than once.
func (b *AudioBridge) CloseIntake() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		defer b.mu.Unlock()
		// The sentinel guarantees a blocked Take observes shutdown even when
		// no real frames remain.
		select {
		case b.frames <- nil:
		default:
		}
		close(b.frames)
	})
}

// Enqueued returns the number of frames accepted so far.
func (b *AudioBridge) Enqueued() int64 {
	return b.enqueued.Load()
}

// Dropped returns the number of frames dropped on a full queue.
func (b *AudioBridge) Dropped() int64 {
	return b.dropped.Load()
}
