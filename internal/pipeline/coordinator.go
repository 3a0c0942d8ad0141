package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/pulsecord/internal/buffer"
	"github.com/MrWong99/pulsecord/internal/capture"
	"github.com/MrWong99/pulsecord/internal/meter"
	"github.com/MrWong99/pulsecord/internal/source"
	"github.com/MrWong99/pulsecord/internal/voice"
)

// SourceRegistry is the view of source discovery the coordinator needs.
type SourceRegistry interface {
	Refresh(ctx context.Context) error
	List() []source.AudioSource
	Resolve(sel source.Selection) (source.AudioSource, bool)
}

// Capturer supervises the capture subprocess.
type Capturer interface {
	Start(ctx context.Context, src source.AudioSource, sink string) error
	Stop()
	Events() <-chan capture.Event
}

// Voice delivers audio to Discord and follows the target user.
type Voice interface {
	Join(channelID string) error
	Leave() error
	Events() <-chan voice.Event
	TargetChannel() (channelID string, ok bool)
	ChannelID() string
	AnnounceStreaming(name string)
	Stats() (frames, silence, drops uint64)
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithSinkLookup overrides how the default sink name is obtained.
func WithSinkLookup(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Coordinator) { c.sinkLookup = fn }
}

// WithCaptureBackoff overrides the capture retry policy.
func WithCaptureBackoff(b *Backoff) Option {
	return func(c *Coordinator) { c.captureBackoff = b }
}

// WithVoiceBackoff overrides the voice rejoin policy.
func WithVoiceBackoff(b *Backoff) Option {
	return func(c *Coordinator) { c.voiceBackoff = b }
}

// Coordinator runs the pipeline's single decision loop.
type Coordinator struct {
	registry SourceRegistry
	capture  Capturer
	voice    Voice
	ring     *buffer.Ring
	levels   *meter.Stereo
	changes  <-chan struct{}
	commands chan Command

	sinkLookup func(ctx context.Context) (string, error)

	captureBackoff *Backoff
	voiceBackoff   *Backoff

	retryTimer *time.Timer
	retryC     <-chan time.Time

	capturing bool
	streaming bool

	mu        sync.Mutex
	state     State
	reason    string
	selection *source.Selection
	sources   []source.AudioSource
}

// NewCoordinator wires the pipeline together. changes signals that the set
// of live sources may have shifted and a refresh is due.
func NewCoordinator(reg SourceRegistry, capt Capturer, vox Voice, ring *buffer.Ring, levels *meter.Stereo, changes <-chan struct{}, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:       reg,
		capture:        capt,
		voice:          vox,
		ring:           ring,
		levels:         levels,
		changes:        changes,
		commands:       make(chan Command, 8),
		sinkLookup:     source.DefaultSink,
		captureBackoff: NewBackoff(500*time.Millisecond, 15*time.Second, 8),
		voiceBackoff:   NewBackoff(time.Second, 30*time.Second, 8),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit hands a command to the decision loop. Reports false when the loop
// is too far behind to accept it.
func (c *Coordinator) Submit(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the current pipeline status.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:   c.state,
		Reason:  c.reason,
		Sources: append([]source.AudioSource(nil), c.sources...),
	}
	if c.selection != nil {
		sel := *c.selection
		snap.Selection = &sel
	}
	c.mu.Unlock()

	snap.ChannelID = c.voice.ChannelID()
	snap.LevelLeft, snap.LevelRight = c.levels.Levels()
	snap.FramesSent, snap.SilenceFrames, snap.SendDrops = c.voice.Stats()
	snap.ChunksDropped = c.ring.Dropped()
	return snap
}

// Run drives the decision loop until the context is cancelled. On the way
// out the capture subprocess is stopped and the voice channel is left.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.registry.Refresh(ctx); err != nil {
		slog.Warn("initial source refresh failed", "error", err)
	}
	c.storeSources()

	for {
		select {
		case <-ctx.Done():
			// Teardown order: voice connection, capture subprocess, buffer.
			_ = c.voice.Leave()
			c.capture.Stop()
			c.ring.Reset()
			return ctx.Err()
		case <-c.changes:
			c.handleSourceChange(ctx)
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		case ev := <-c.capture.Events():
			c.handleCaptureEvent(ctx, ev)
		case ev := <-c.voice.Events():
			c.handleVoiceEvent(ctx, ev)
		case <-c.retryC:
			c.clearRetry()
			c.startStreaming(ctx)
		}
	}
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandSelect:
		slog.Info("source selected", "name", cmd.Selection.Name, "index", cmd.Selection.Index)
		c.mu.Lock()
		sel := cmd.Selection
		c.selection = &sel
		c.mu.Unlock()
		c.captureBackoff.Reset()
		c.voiceBackoff.Reset()
		c.clearRetry()
		c.startStreaming(ctx)
	case CommandStop:
		slog.Info("streaming stopped by operator")
		c.mu.Lock()
		c.selection = nil
		c.mu.Unlock()
		c.clearRetry()
		c.stopStreaming()
		c.setState(StateIdle, "")
	}
}

// startStreaming drives the pipeline as far toward Streaming as current
// conditions allow: resolve the selection, join the target's channel, spawn
// capture. Any missing precondition parks the pipeline in the matching wait
// state; spawn and join failures go through backoff.
func (c *Coordinator) startStreaming(ctx context.Context) {
	c.mu.Lock()
	sel := c.selection
	c.mu.Unlock()
	if sel == nil {
		c.setState(StateIdle, "")
		return
	}

	src, ok := c.registry.Resolve(*sel)
	if !ok {
		c.stopCapture()
		c.setState(StateAwaitingSource, "no live source matches the selection")
		return
	}

	channelID, inVoice := c.voice.TargetChannel()
	if !inVoice {
		c.stopCapture()
		c.setState(StateAwaitingChannel, "target user is not in a voice channel")
		return
	}

	if c.voice.ChannelID() != channelID {
		if err := c.voice.Join(channelID); err != nil {
			slog.Warn("voice join failed", "channel", channelID, "error", err)
			c.scheduleRetry(c.voiceBackoff, "voice join failed")
			return
		}
	}
	c.voiceBackoff.Reset()

	if !c.capturing {
		sink, err := c.sinkLookup(ctx)
		if err != nil {
			slog.Warn("default sink lookup failed", "error", err)
			c.scheduleRetry(c.captureBackoff, "cannot determine default sink")
			return
		}
		if err := c.capture.Start(ctx, src, sink); err != nil {
			slog.Warn("capture spawn failed", "error", err)
			c.scheduleRetry(c.captureBackoff, "capture spawn failed")
			return
		}
		c.capturing = true
	}

	// A live session that already reported audio keeps streaming through a
	// follow move or a voice rejoin; only a fresh session waits for it.
	if c.streaming {
		c.setState(StateStreaming, "")
		return
	}
	c.setState(StateReconnecting, "waiting for audio")
}

func (c *Coordinator) handleCaptureEvent(ctx context.Context, ev capture.Event) {
	switch ev.Type {
	case capture.EventStreaming:
		c.captureBackoff.Reset()
		c.streaming = true
		c.setState(StateStreaming, "")
		c.mu.Lock()
		sel := c.selection
		c.mu.Unlock()
		if sel != nil {
			c.voice.AnnounceStreaming(sel.Name)
		}
	case capture.EventEnded:
		c.capturing = false
		c.streaming = false
		// The usual cause is the source application restarting under a new
		// index, so refresh before the retry resolves the selection again.
		if err := c.registry.Refresh(ctx); err != nil {
			slog.Warn("source refresh failed", "error", err)
		}
		c.storeSources()
		c.scheduleRetry(c.captureBackoff, "capture stream ended")
	case capture.EventStartTimeout:
		c.capturing = false
		c.streaming = false
		c.scheduleRetry(c.captureBackoff, "no audio within startup timeout")
	case capture.EventMoved:
		c.stopCapture()
		c.scheduleRetry(c.captureBackoff, "stream moved to another device")
	case capture.EventTimedOut:
		c.stopCapture()
		c.scheduleRetry(c.captureBackoff, "capture stream timed out")
	}
}

func (c *Coordinator) handleVoiceEvent(ctx context.Context, ev voice.Event) {
	switch ev.Type {
	case voice.EventJoined:
		c.voiceBackoff.Reset()
	case voice.EventDisconnected:
		c.scheduleRetry(c.voiceBackoff, "voice connection lost")
	case voice.EventTargetMoved:
		c.handleTargetMoved(ctx, ev.ChannelID)
	}
}

func (c *Coordinator) handleTargetMoved(ctx context.Context, channelID string) {
	c.mu.Lock()
	sel := c.selection
	c.mu.Unlock()

	if channelID == "" {
		c.stopStreaming()
		if sel == nil {
			c.setState(StateIdle, "")
		} else {
			c.setState(StateAwaitingChannel, "target user left voice")
		}
		return
	}
	if sel == nil {
		return
	}
	// A target channel change clears a persistent failure; the world has
	// visibly changed, so retry from scratch.
	if c.currentState() == StateFailed {
		c.captureBackoff.Reset()
		c.voiceBackoff.Reset()
	}
	c.startStreaming(ctx)
}

func (c *Coordinator) handleSourceChange(ctx context.Context) {
	if err := c.registry.Refresh(ctx); err != nil {
		slog.Warn("source refresh failed", "error", err)
		return
	}
	c.storeSources()
	if c.currentState() == StateAwaitingSource {
		c.startStreaming(ctx)
	}
}

// scheduleRetry arms the retry timer, replacing any pending one. Exhausted
// backoff parks the pipeline in StateFailed.
func (c *Coordinator) scheduleRetry(b *Backoff, reason string) {
	delay, ok := b.Next()
	if !ok {
		slog.Error("retries exhausted", "reason", reason)
		c.stopStreaming()
		c.setState(StateFailed, reason+"; retries exhausted")
		return
	}
	slog.Info("scheduling retry", "reason", reason, "delay", delay, "attempt", b.Attempt())
	c.clearRetry()
	c.retryTimer = time.NewTimer(delay)
	c.retryC = c.retryTimer.C
	c.setState(StateReconnecting, reason)
}

func (c *Coordinator) clearRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryC = nil
}

func (c *Coordinator) stopCapture() {
	c.capture.Stop()
	c.capturing = false
	c.streaming = false
}

func (c *Coordinator) stopStreaming() {
	c.stopCapture()
	if err := c.voice.Leave(); err != nil {
		slog.Warn("voice leave failed", "error", err)
	}
	c.voice.AnnounceStreaming("")
}

func (c *Coordinator) storeSources() {
	list := c.registry.List()
	c.mu.Lock()
	c.sources = list
	c.mu.Unlock()
}

func (c *Coordinator) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State, reason string) {
	c.mu.Lock()
	changed := c.state != s || c.reason != reason
	c.state = s
	c.reason = reason
	c.mu.Unlock()
	if changed {
		slog.Info("pipeline state", "state", s, "reason", reason)
	}
}
