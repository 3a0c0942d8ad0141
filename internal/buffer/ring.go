// Package buffer provides the bounded transfer queue that decouples the
// blocking capture read loop from the fixed-cadence voice send loop.
//
// The capture supervisor pushes raw byte chunks at whatever granularity the
// OS read yields; the ring reassembles them into exact [audio.FrameBytes]
// frames so the consumer never observes a partial frame. When the ring is
// full the oldest frame is discarded and counted — for a live relay, lag is
// worse than losing a fraction of a second. When the ring is empty the
// consumer receives silence so the outbound cadence never breaks.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/MrWong99/pulsecord/pkg/audio"
)

// DefaultCapacity holds just under one second of audio (48 frames × 20 ms),
// enough to absorb scheduling jitter without perceptible delay.
const DefaultCapacity = 48

// Tap receives a copy of every frame pulled for delivery. Used by the level
// meter; it observes the output stream without consuming it. The callback
// runs on the consumer goroutine and must be fast.
type Tap func(audio.Frame)

// Ring is a bounded single-producer/single-consumer frame queue with a
// drop-oldest overflow policy.
type Ring struct {
	mu      sync.Mutex
	frames  []audio.Frame
	head    int // index of oldest frame
	count   int
	pending []byte // partial frame accumulation, producer side
	seq     uint64

	dropped atomic.Uint64

	tapMu sync.RWMutex
	tap   Tap
}

// New creates a Ring holding at most capacity frames. A capacity of zero or
// less selects [DefaultCapacity].
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{frames: make([]audio.Frame, capacity)}
}

// SetTap registers the non-destructive observer for pulled frames. Passing
// nil removes it.
func (r *Ring) SetTap(t Tap) {
	r.tapMu.Lock()
	r.tap = t
	r.tapMu.Unlock()
}

// Push appends raw capture bytes. Complete frames are cut off the pending
// buffer, stamped with the next sequence number and their peak loudness, and
// enqueued. Push never blocks; on overflow the oldest frame is dropped and
// the drop counter incremented.
func (r *Ring) Push(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, p...)
	for len(r.pending) >= audio.FrameBytes {
		data := make([]byte, audio.FrameBytes)
		copy(data, r.pending[:audio.FrameBytes])
		r.pending = r.pending[audio.FrameBytes:]

		r.seq++
		r.enqueue(audio.Frame{
			Data:     data,
			Seq:      r.seq,
			Loudness: audio.Peak(data),
		})
	}
}

// enqueue adds one frame, evicting the oldest when full. Caller holds r.mu.
func (r *Ring) enqueue(f audio.Frame) {
	if r.count == len(r.frames) {
		r.head = (r.head + 1) % len(r.frames)
		r.count--
		r.dropped.Add(1)
	}
	r.frames[(r.head+r.count)%len(r.frames)] = f
	r.count++
}

// TryPull removes and returns the oldest frame. Returns false when empty.
func (r *Ring) TryPull() (audio.Frame, bool) {
	r.mu.Lock()
	if r.count == 0 {
		r.mu.Unlock()
		return audio.Frame{}, false
	}
	f := r.frames[r.head]
	r.frames[r.head] = audio.Frame{}
	r.head = (r.head + 1) % len(r.frames)
	r.count--
	r.mu.Unlock()

	r.observe(f)
	return f, true
}

// PullFrame returns the oldest frame, or a silence frame when the ring is
// empty. It never blocks.
func (r *Ring) PullFrame() audio.Frame {
	if f, ok := r.TryPull(); ok {
		return f
	}
	f := audio.SilenceFrame()
	r.observe(f)
	return f
}

// observe feeds the tap, if any.
func (r *Ring) observe(f audio.Frame) {
	r.tapMu.RLock()
	tap := r.tap
	r.tapMu.RUnlock()
	if tap != nil {
		tap(f)
	}
}

// Len reports the number of complete frames currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped reports the total number of frames discarded due to overflow.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Reset discards all queued frames and any partial pending bytes. Used when
// a fresh capture session starts so stale audio from the previous source is
// not delivered. The drop counter is not reset.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.frames {
		r.frames[i] = audio.Frame{}
	}
	r.head = 0
	r.count = 0
	r.pending = nil
}
