package capture

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/pulsecord/internal/source"
)

// State is the lifecycle phase of a capture session. Transitions only move
// forward: Starting → Streaming → Dead, or Starting → Dead on timeout.
// A dead session is discarded entirely; subprocess arguments are bound at
// spawn time, so a fresh source always requires a fresh session.
type State int32

const (
	// StateStarting means the subprocess is spawned but no audio bytes have
	// arrived yet.
	StateStarting State = iota

	// StateStreaming means audio bytes are flowing.
	StateStreaming

	// StateDead is terminal: the subprocess exited, timed out, or was
	// stopped.
	StateDead
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Session is one running capture subprocess bound to one source index.
// Owned exclusively by the [Supervisor]; destroyed and replaced, never
// repaired, on any failure.
type Session struct {
	src source.AudioSource

	state atomic.Int32

	// stopped marks an intentional teardown so the pump does not report a
	// deliberate kill as a capture failure.
	stopped atomic.Bool

	// stream statistics updated from parec's stderr time lines.
	streamSecs  atomic.Uint64 // float64 bits
	latencyUsec atomic.Uint64

	kill     func()
	killOnce sync.Once
}

// newSession creates a session in the Starting state.
func newSession(src source.AudioSource, kill func()) *Session {
	return &Session{src: src, kill: kill}
}

// Source returns the source this session captures.
func (s *Session) Source() source.AudioSource { return s.src }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// markStreaming transitions Starting → Streaming. Reports whether the
// transition happened (false once dead or already streaming).
func (s *Session) markStreaming() bool {
	return s.state.CompareAndSwap(int32(StateStarting), int32(StateStreaming))
}

// markDead transitions to the terminal state. Reports whether this call
// performed the transition.
func (s *Session) markDead() bool {
	return State(s.state.Swap(int32(StateDead))) != StateDead
}

// stop tears the subprocess down exactly once, on every exit path.
func (s *Session) stop() {
	s.stopped.Store(true)
	s.terminate()
}

// terminate kills the subprocess without marking the stop intentional.
func (s *Session) terminate() {
	s.killOnce.Do(func() {
		if s.kill != nil {
			s.kill()
		}
	})
}

// recordTime stores stream time and latency from a parec time event.
func (s *Session) recordTime(secs float64, latencyUsec uint64) {
	s.streamSecs.Store(math.Float64bits(secs))
	s.latencyUsec.Store(latencyUsec)
}

// StreamTime returns seconds of audio captured so far, as reported by parec.
func (s *Session) StreamTime() float64 {
	return math.Float64frombits(s.streamSecs.Load())
}

// LatencyUsec returns the last reported capture latency in microseconds.
func (s *Session) LatencyUsec() uint64 {
	return s.latencyUsec.Load()
}
