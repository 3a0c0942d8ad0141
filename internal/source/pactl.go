package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// SinkInput is one raw stream entry from the audio server.
type SinkInput struct {
	Index      uint32
	Volume     float64
	Properties map[string]string
}

// Lister queries the audio server for the current stream list. Implemented
// by [PactlLister] in production and by fakes in tests.
type Lister interface {
	SinkInputs(ctx context.Context) ([]SinkInput, error)
}

// PactlLister shells out to pactl, which speaks to both PulseAudio and
// PipeWire. Listing is side-effect free and may be called repeatedly.
type PactlLister struct{}

// pactlSinkInput mirrors the relevant parts of `pactl --format=json list
// sink-inputs` output.
type pactlSinkInput struct {
	Index      uint32                 `json:"index"`
	Volume     map[string]pactlVolume `json:"volume"`
	Properties map[string]string      `json:"properties"`
}

type pactlVolume struct {
	DB string `json:"db"`
}

// SinkInputs lists the audio server's current sink inputs.
func (PactlLister) SinkInputs(ctx context.Context) ([]SinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "--format=json", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: pactl list sink-inputs: %v", ErrSourceQuery, err)
	}
	return parseSinkInputs(out)
}

// parseSinkInputs decodes pactl JSON output into [SinkInput] values.
func parseSinkInputs(data []byte) ([]SinkInput, error) {
	var raw []pactlSinkInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse pactl output: %v", ErrSourceQuery, err)
	}

	inputs := make([]SinkInput, 0, len(raw))
	for _, r := range raw {
		inputs = append(inputs, SinkInput{
			Index:      r.Index,
			Volume:     averageVolume(r.Volume),
			Properties: r.Properties,
		})
	}
	return inputs, nil
}

// averageVolume converts per-channel dB strings like "-3.01 dB" into one
// linear factor. Unparseable volumes default to unity.
func averageVolume(channels map[string]pactlVolume) float64 {
	var sum float64
	var n int
	for _, ch := range channels {
		s := strings.TrimSuffix(strings.TrimSpace(ch.DB), " dB")
		db, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		sum += math.Pow(10, db/20)
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// DefaultSink returns the name of the audio server's default sink. The
// capture subprocess records from this sink's monitor.
func DefaultSink(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pactl", "get-default-sink").Output()
	if err != nil {
		return "", fmt.Errorf("%w: pactl get-default-sink: %v", ErrSourceQuery, err)
	}
	sink := strings.TrimSpace(string(out))
	if sink == "" {
		return "", fmt.Errorf("%w: no default sink reported", ErrSourceQuery)
	}
	return sink, nil
}
