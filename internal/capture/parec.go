package capture

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
)

// parec's verbose stderr is the only feedback channel for stream health:
// it announces the device it attached to, prints periodic time/latency
// lines, and reports when the audio server moved or timed out the stream.
var (
	connectedRE = regexp.MustCompile(`Connected to device (.*?) \(index: (\d+), suspended: no\)`)
	timeRE      = regexp.MustCompile(`Time: (\d+\.\d+) sec; Latency: (\d+) usec`)
)

const (
	streamMovedMarker   = "Stream moved to"
	streamTimeoutMarker = "Stream error: Timeout"
)

// parecEvent is one parsed stderr line.
type parecEvent struct {
	kind parecEventKind

	// device and index are set for connected events.
	device string
	index  uint32

	// seconds and latencyUsec are set for time events.
	seconds     float64
	latencyUsec uint64
}

type parecEventKind int

const (
	parecConnected parecEventKind = iota
	parecTime
	parecMoved
	parecTimedOut
)

// parseParecLine extracts an event from one stderr line, if any.
func parseParecLine(line string) (parecEvent, bool) {
	if m := connectedRE.FindStringSubmatch(line); m != nil {
		idx, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			return parecEvent{}, false
		}
		return parecEvent{kind: parecConnected, device: m[1], index: uint32(idx)}, true
	}
	if m := timeRE.FindStringSubmatch(line); m != nil {
		sec, err1 := strconv.ParseFloat(m[1], 64)
		usec, err2 := strconv.ParseUint(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			return parecEvent{}, false
		}
		return parecEvent{kind: parecTime, seconds: sec, latencyUsec: usec}, true
	}
	if bytes.Contains([]byte(line), []byte(streamMovedMarker)) {
		return parecEvent{kind: parecMoved}, true
	}
	if bytes.Contains([]byte(line), []byte(streamTimeoutMarker)) {
		return parecEvent{kind: parecTimedOut}, true
	}
	return parecEvent{}, false
}

// scanParecLines splits on both CR and LF — parec redraws its time line
// with bare carriage returns.
func scanParecLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// newParecScanner wraps a stderr stream with CR/LF-aware line splitting.
func newParecScanner(r *bufio.Scanner) *bufio.Scanner {
	r.Split(scanParecLines)
	return r
}
