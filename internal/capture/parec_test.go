package capture

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseParecLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantKind parecEventKind
		wantOK   bool
	}{
		{
			name:     "connected",
			line:     "Connected to device alsa_output.pci-0000_00_1f.3.analog-stereo.monitor (index: 57, suspended: no).",
			wantKind: parecConnected,
			wantOK:   true,
		},
		{
			name:     "time",
			line:     "Time: 12.345 sec; Latency: 23456 usec.",
			wantKind: parecTime,
			wantOK:   true,
		},
		{
			name:     "stream moved",
			line:     "Stream moved to device alsa_output.usb-headset.analog-stereo (index: 61, suspended: no).",
			wantKind: parecMoved,
			wantOK:   true,
		},
		{
			name:     "timeout",
			line:     "Stream error: Timeout",
			wantKind: parecTimedOut,
			wantOK:   true,
		},
		{
			name:   "noise",
			line:   "Opening a recording stream with sample specification 's16le 2ch 48000Hz'",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseParecLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ev.kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", ev.kind, tt.wantKind)
			}
		})
	}
}

func TestParseParecLine_Fields(t *testing.T) {
	ev, ok := parseParecLine("Connected to device mysink.monitor (index: 57, suspended: no).")
	if !ok {
		t.Fatal("not parsed")
	}
	if ev.device != "mysink.monitor" {
		t.Errorf("device = %q", ev.device)
	}
	if ev.index != 57 {
		t.Errorf("index = %d, want 57", ev.index)
	}

	ev, ok = parseParecLine("Time: 1.500 sec; Latency: 900 usec.")
	if !ok {
		t.Fatal("time line not parsed")
	}
	if ev.seconds != 1.5 {
		t.Errorf("seconds = %v, want 1.5", ev.seconds)
	}
	if ev.latencyUsec != 900 {
		t.Errorf("latencyUsec = %d, want 900", ev.latencyUsec)
	}
}

// parec redraws the time line using bare carriage returns; the scanner must
// treat CR like a line break.
func TestParecScanner_CarriageReturns(t *testing.T) {
	input := "Time: 1.000 sec; Latency: 10 usec.\rTime: 2.000 sec; Latency: 20 usec.\nStream error: Timeout\n"
	sc := newParecScanner(bufio.NewScanner(strings.NewReader(input)))

	var kinds []parecEventKind
	for sc.Scan() {
		if ev, ok := parseParecLine(sc.Text()); ok {
			kinds = append(kinds, ev.kind)
		}
	}
	want := []parecEventKind{parecTime, parecTime, parecTimedOut}
	if len(kinds) != len(want) {
		t.Fatalf("parsed %d events, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestParecArgs(t *testing.T) {
	args := parecArgs("alsa_output.analog", 42, 10)
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--device alsa_output.analog.monitor",
		"--monitor-stream 42",
		"--format=s16le",
		"--rate=48000",
		"--channels=2",
		"--latency-msec=10",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
}
