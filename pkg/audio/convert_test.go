package audio_test

import (
	"testing"

	"github.com/MrWong99/pulsecord/pkg/audio"
)

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	out := audio.BytesToInt16s(audio.Int16sToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestBytesToInt16s_OddTrailingByte(t *testing.T) {
	out := audio.BytesToInt16s([]byte{0x01, 0x02, 0xff})
	if len(out) != 1 {
		t.Fatalf("length = %d, want 1", len(out))
	}
	if out[0] != 0x0201 {
		t.Errorf("sample = %#x, want 0x0201", out[0])
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name string
		pcm  []int16
		want float64
	}{
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"full scale negative", []int16{0, -32768, 0}, 1},
		{"half scale", []int16{16384, -100}, 0.5},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.Peak(audio.Int16sToBytes(tt.pcm))
			if got != tt.want {
				t.Errorf("Peak = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSilenceFrame(t *testing.T) {
	f := audio.SilenceFrame()
	if !f.Silence {
		t.Error("Silence flag not set")
	}
	if len(f.Data) != audio.FrameBytes {
		t.Errorf("len(Data) = %d, want %d", len(f.Data), audio.FrameBytes)
	}
	for i, b := range f.Data {
		if b != 0 {
			t.Fatalf("non-zero byte at %d", i)
		}
	}
}

func TestFrameConstants(t *testing.T) {
	if audio.FrameSamples != 960 {
		t.Errorf("FrameSamples = %d, want 960", audio.FrameSamples)
	}
	if audio.FrameBytes != 3840 {
		t.Errorf("FrameBytes = %d, want 3840", audio.FrameBytes)
	}
}
