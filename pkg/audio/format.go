// Package audio defines the PCM format constants and frame type shared by
// every stage of the pulsecord pipeline: capture, buffering, metering, and
// voice delivery.
//
// The pipeline carries exactly one format end to end — 48 kHz interleaved
// stereo signed 16-bit little-endian PCM, cut into 20 ms frames. That is the
// native format of Discord's Opus voice transport, and parec is asked to
// produce it directly so no resampling or channel conversion stage exists.
package audio

import "time"

const (
	// SampleRate is the pipeline sample rate in Hz.
	SampleRate = 48000

	// Channels is the number of interleaved channels (stereo).
	Channels = 2

	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = 2

	// FrameDuration is the fixed cadence at which the voice transport
	// consumes one encoded packet.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per channel in one frame.
	FrameSamples = SampleRate / 1000 * 20 // 960

	// FrameBytes is the exact PCM size of one frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample.
	FrameBytes = FrameSamples * Channels * BytesPerSample // 3840
)

// Frame is a fixed-size chunk of PCM flowing from capture to delivery.
// Data is always exactly [FrameBytes] long for frames produced by the
// transfer buffer. Seq increases monotonically per capture session; silence
// frames synthesised on buffer underflow carry Seq 0 and Silence true.
type Frame struct {
	// Data holds interleaved s16le PCM.
	Data []byte

	// Seq is the monotonic sequence number assigned when the frame was cut
	// from the capture byte stream.
	Seq uint64

	// Loudness is the peak amplitude of the frame in [0, 1], computed when
	// the frame was produced.
	Loudness float64

	// Silence marks a frame synthesised because no captured audio was
	// available in time.
	Silence bool
}

// silence is the shared backing store for silence frames. Callers must not
// mutate frame data, so sharing is safe.
var silence = make([]byte, FrameBytes)

// SilenceFrame returns a frame of digital silence. The voice transport
// requires a packet every [FrameDuration] regardless of source availability,
// so the transfer buffer hands these out on underflow.
func SilenceFrame() Frame {
	return Frame{Data: silence, Silence: true}
}
