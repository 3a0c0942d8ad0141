package meter_test

import (
	"testing"

	"github.com/MrWong99/pulsecord/internal/meter"
	"github.com/MrWong99/pulsecord/pkg/audio"
)

// stereoFrame builds a frame with constant left/right sample values.
func stereoFrame(left, right int16) audio.Frame {
	samples := make([]int16, audio.FrameSamples*audio.Channels)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = left
		samples[i+1] = right
	}
	return audio.Frame{Data: audio.Int16sToBytes(samples)}
}

func TestSilenceIsZero(t *testing.T) {
	m := meter.New()
	m.Process(stereoFrame(0, 0))
	l, r := m.Levels()
	if l != 0 || r != 0 {
		t.Errorf("Levels = %v, %v, want 0, 0", l, r)
	}
}

func TestFullScalePeaksAtOne(t *testing.T) {
	m := meter.New()
	m.Process(stereoFrame(-32768, 32767))
	l, r := m.Levels()
	if l != 1 {
		t.Errorf("left = %v, want 1", l)
	}
	if r < 0.99 {
		t.Errorf("right = %v, want ~1", r)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	m := meter.New()
	m.Process(stereoFrame(16384, 0))
	l, r := m.Levels()
	if l <= r {
		t.Errorf("left %v should exceed right %v", l, r)
	}
	if r != 0 {
		t.Errorf("right = %v, want 0", r)
	}
}

func TestPeakDecaysOverSilence(t *testing.T) {
	m := meter.New()
	m.Process(stereoFrame(32767, 32767))
	peakL, _ := m.Levels()

	for i := 0; i < 20; i++ {
		m.Process(stereoFrame(0, 0))
	}
	decayedL, _ := m.Levels()

	if decayedL >= peakL {
		t.Errorf("level did not decay: peak %v, after silence %v", peakL, decayedL)
	}
	if decayedL < 0 {
		t.Errorf("level fell below display range: %v", decayedL)
	}
}

func TestPeakRisesInstantly(t *testing.T) {
	m := meter.New()
	m.Process(stereoFrame(100, 100))
	m.Process(stereoFrame(30000, 30000))
	l, _ := m.Levels()

	fresh := meter.New()
	fresh.Process(stereoFrame(30000, 30000))
	want, _ := fresh.Levels()

	if l != want {
		t.Errorf("level = %v after loud frame, want %v (no attack smoothing)", l, want)
	}
}
