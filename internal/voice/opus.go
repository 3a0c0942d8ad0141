package voice

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/pulsecord/pkg/audio"
)

// opusEncoder wraps a gopus Opus encoder for the outbound voice stream.
// Discord voice consumes 48 kHz stereo Opus at 20 ms frames, which matches
// the pipeline format exactly.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates an encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("voice: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved s16le PCM into an Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := audio.BytesToInt16s(pcmBytes)
	pkt, err := e.enc.Encode(pcm, audio.FrameSamples, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("voice: opus encode: %w", err)
	}
	return pkt, nil
}
