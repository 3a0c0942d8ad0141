// Package meter computes instantaneous loudness for UI feedback.
//
// A [Stereo] meter taps the transfer buffer's output stream: each delivered
// frame is split into left/right channels and fed to a per-channel peak
// detector with decay smoothing, so the displayed level rises instantly on a
// peak and falls smoothly afterwards. Values are mapped through dBFS onto a
// bounded [0, 1] display scale.
//
// The meter is a pure observer — it never consumes frames destructively and
// has no effect on the delivery path.
package meter

import (
	"math"
	"sync"

	"github.com/MrWong99/pulsecord/pkg/audio"
)

const (
	// dbRange is the span of the display scale: -70 dBFS maps to 0,
	// 0 dBFS maps to 1.
	dbRange = 70.0

	// decay is the per-frame multiplier applied to the held peak while no
	// louder sample arrives. At 50 frames/s this releases roughly 30 dB/s.
	decay = 0.93
)

// Channel is a single-channel peak meter with decay smoothing.
type Channel struct {
	peak float64
}

// process updates the held peak from one channel's samples.
func (c *Channel) process(samples []int16) {
	var max float64
	for _, s := range samples {
		v := math.Abs(float64(s)) / 32768.0
		if v > max {
			max = v
		}
	}
	if max >= c.peak {
		c.peak = max
	} else {
		c.peak *= decay
	}
}

// Value returns the current raw peak in [0, 1].
func (c *Channel) Value() float64 { return c.peak }

// DBFS returns the current peak in decibels relative to full scale.
// Returns -Inf for digital silence.
func (c *Channel) DBFS() float64 {
	return 20 * math.Log10(c.peak)
}

// Ranged maps the current peak onto the bounded display scale [0, 1].
func (c *Channel) Ranged() float64 {
	db := c.DBFS()
	if math.IsInf(db, -1) {
		return 0
	}
	v := (dbRange + db) / dbRange
	return math.Max(0, math.Min(1, v))
}

// Stereo meters both channels of the interleaved pipeline stream.
// Safe for concurrent use: Process is called from the delivery goroutine,
// Levels from the UI snapshot path.
type Stereo struct {
	mu    sync.Mutex
	left  Channel
	right Channel
}

// New creates a Stereo meter.
func New() *Stereo {
	return &Stereo{}
}

// Process deinterleaves one frame and updates both channel meters.
// Intended for use as a [buffer.Tap].
func (s *Stereo) Process(f audio.Frame) {
	samples := audio.BytesToInt16s(f.Data)
	left := make([]int16, 0, len(samples)/2)
	right := make([]int16, 0, len(samples)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		left = append(left, samples[i])
		right = append(right, samples[i+1])
	}

	s.mu.Lock()
	s.left.process(left)
	s.right.process(right)
	s.mu.Unlock()
}

// Levels returns the display-scaled levels for the left and right channels.
func (s *Stereo) Levels() (left, right float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left.Ranged(), s.right.Ranged()
}
