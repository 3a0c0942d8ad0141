// Package capture owns the lifecycle of the external parec subprocess that
// records an application's monitor stream, and pumps its raw PCM output into
// the transfer buffer.
//
// parec is treated strictly as a byte stream producer: stdout carries
// interleaved s16le PCM chunked at whatever granularity the OS yields,
// stderr carries verbose status lines that are parsed for stream health.
// A session that fails in any way is torn down and replaced — subprocess
// state is never repaired in place.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/MrWong99/pulsecord/internal/buffer"
	"github.com/MrWong99/pulsecord/internal/source"
)

// ErrStartTimeout indicates the subprocess produced no audio within the
// startup window.
var ErrStartTimeout = errors.New("capture: no audio within startup timeout")

// EventType classifies supervisor events delivered to the coordinator.
type EventType int

const (
	// EventStreaming is emitted when the first audio bytes arrive.
	EventStreaming EventType = iota

	// EventEnded is emitted when the subprocess exits or its stream ends
	// unexpectedly. The usual cause is the source application itself going
	// away, so the coordinator re-resolves the source before restarting.
	EventEnded

	// EventStartTimeout is emitted when no bytes arrive in time.
	EventStartTimeout

	// EventMoved is emitted when the audio server moved the stream to a
	// different device; the session is no longer capturing what was asked.
	EventMoved

	// EventTimedOut is emitted when parec reports a stream timeout.
	EventTimedOut
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventStreaming:
		return "streaming"
	case EventEnded:
		return "ended"
	case EventStartTimeout:
		return "start-timeout"
	case EventMoved:
		return "moved"
	case EventTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Event is a capture lifecycle fact reported to the coordinator. The
// supervisor never acts on failures itself.
type Event struct {
	Type  EventType
	Index uint32
	Err   error
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithStartTimeout overrides the default 5 s startup window.
func WithStartTimeout(d time.Duration) Option {
	return func(sv *Supervisor) { sv.startTimeout = d }
}

// WithLatencyMsec overrides the target capture latency requested from parec.
func WithLatencyMsec(ms int) Option {
	return func(sv *Supervisor) { sv.latencyMsec = ms }
}

// Supervisor owns at most one [Session] at a time.
type Supervisor struct {
	ring         *buffer.Ring
	events       chan Event
	startTimeout time.Duration
	latencyMsec  int

	mu      sync.Mutex
	session *Session
}

// NewSupervisor creates a Supervisor feeding the given transfer buffer.
func NewSupervisor(ring *buffer.Ring, opts ...Option) *Supervisor {
	sv := &Supervisor{
		ring:         ring,
		events:       make(chan Event, 16),
		startTimeout: 5 * time.Second,
		latencyMsec:  10,
	}
	for _, o := range opts {
		o(sv)
	}
	return sv
}

// Events delivers capture lifecycle events. The channel is buffered; if the
// consumer stalls, events are dropped with a warning rather than blocking
// the capture path.
func (sv *Supervisor) Events() <-chan Event {
	return sv.events
}

// Session returns the current session, or nil.
func (sv *Supervisor) Session() *Session {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.session
}

// parecArgs builds the recorder command line for one source on one sink.
func parecArgs(sink string, index uint32, latencyMsec int) []string {
	return []string{
		"--verbose",
		"--device", sink + ".monitor",
		"--monitor-stream", fmt.Sprintf("%d", index),
		"--format=s16le",
		"--rate=48000",
		"--channels=2",
		fmt.Sprintf("--latency-msec=%d", latencyMsec),
	}
}

// Start tears down any existing session and spawns a fresh parec bound to
// the given source's monitor on the given sink. The returned error covers
// spawn failures only; startup timeouts and later failures arrive as events.
func (sv *Supervisor) Start(ctx context.Context, src source.AudioSource, sink string) error {
	sv.Stop()

	cmd := exec.CommandContext(ctx, "parec", parecArgs(sink, src.Index, sv.latencyMsec)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("capture: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: spawn parec: %w", err)
	}

	sess := newSession(src, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})

	sv.mu.Lock()
	sv.session = sess
	sv.mu.Unlock()

	// Stale audio from the previous source must not be delivered.
	sv.ring.Reset()

	slog.Info("capture session starting",
		"source", src.Name,
		"index", src.Index,
		"sink", sink,
	)

	go sv.pump(sess, stdout)
	go sv.watchStderr(sess, stderr)
	go sv.watchStartup(sess)
	go func() {
		// Reap the subprocess; the pump observes EOF independently.
		_ = cmd.Wait()
	}()

	return nil
}

// Stop terminates the current session, if any. Safe to call repeatedly and
// on every exit path; no capture subprocess is ever orphaned.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	sess := sv.session
	sv.session = nil
	sv.mu.Unlock()

	if sess == nil {
		return
	}
	sess.stop()
	sess.markDead()
	slog.Debug("capture session stopped", "index", sess.Source().Index)
}

// pump blocks on the subprocess's stdout on its own goroutine and pushes
// every chunk into the transfer buffer. This is the only blocking-I/O leg of
// the pipeline and shares no execution context with the send path.
func (sv *Supervisor) pump(sess *Session, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if sess.markStreaming() {
				sv.emit(Event{Type: EventStreaming, Index: sess.Source().Index})
				slog.Info("capture streaming", "source", sess.Source().Name)
			}
			sv.ring.Push(buf[:n])
		}
		if err != nil {
			sess.terminate()
			if sess.markDead() && !sess.stopped.Load() {
				sv.emit(Event{Type: EventEnded, Index: sess.Source().Index, Err: err})
			}
			return
		}
	}
}

// watchStderr parses parec's verbose output for stream health events.
func (sv *Supervisor) watchStderr(sess *Session, r io.Reader) {
	scanner := newParecScanner(bufio.NewScanner(r))
	for scanner.Scan() {
		ev, ok := parseParecLine(scanner.Text())
		if !ok {
			continue
		}
		switch ev.kind {
		case parecConnected:
			slog.Debug("parec attached", "device", ev.device, "index", ev.index)
		case parecTime:
			sess.recordTime(ev.seconds, ev.latencyUsec)
		case parecMoved:
			if !sess.stopped.Load() {
				sv.emit(Event{Type: EventMoved, Index: sess.Source().Index})
			}
		case parecTimedOut:
			if !sess.stopped.Load() {
				sv.emit(Event{Type: EventTimedOut, Index: sess.Source().Index})
			}
		}
	}
}

// watchStartup enforces the startup window: a session still Starting when
// the timer fires is torn down and reported.
func (sv *Supervisor) watchStartup(sess *Session) {
	timer := time.NewTimer(sv.startTimeout)
	defer timer.Stop()
	<-timer.C

	if sess.State() != StateStarting {
		return
	}
	sess.terminate()
	if sess.markDead() && !sess.stopped.Load() {
		sv.emit(Event{Type: EventStartTimeout, Index: sess.Source().Index, Err: ErrStartTimeout})
	}
}

// emit delivers an event without ever blocking the capture path.
func (sv *Supervisor) emit(ev Event) {
	select {
	case sv.events <- ev:
	default:
		slog.Warn("capture event dropped, consumer stalled", "type", ev.Type)
	}
}
