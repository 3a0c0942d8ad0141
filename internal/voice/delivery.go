// Package voice delivers the buffered PCM stream into a Discord voice
// channel and tracks the followed target user's whereabouts.
//
// The send loop is strictly paced: every 20 ms it pulls exactly one frame
// from the transfer buffer, encodes it to Opus and hands it to the voice
// connection. The buffer guarantees a frame is always available (silence on
// underflow), so the cadence never stalls on the capture side.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pulsecord/internal/buffer"
	"github.com/MrWong99/pulsecord/pkg/audio"
)

// disconnectTicks is how many consecutive not-ready send ticks are tolerated
// before the connection is declared lost (150 ticks at 20 ms is 3 s).
const disconnectTicks = 150

// EventType classifies voice events delivered to the coordinator.
type EventType int

const (
	// EventJoined is emitted after a voice channel was joined successfully.
	EventJoined EventType = iota

	// EventDisconnected is emitted when an established connection stops
	// accepting audio. The coordinator decides whether and when to rejoin.
	EventDisconnected

	// EventTargetMoved is emitted when the followed user changed voice
	// channels, joined one, or left voice entirely (empty ChannelID).
	EventTargetMoved
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoined:
		return "joined"
	case EventDisconnected:
		return "disconnected"
	case EventTargetMoved:
		return "target-moved"
	default:
		return "unknown"
	}
}

// Event is a voice lifecycle fact reported to the coordinator.
type Event struct {
	Type          EventType
	ChannelID     string
	PrevChannelID string
}

// Delivery owns the bot's voice connection in one guild.
type Delivery struct {
	guildID  string
	targetID string
	ring     *buffer.Ring
	enc      *opusEncoder
	events   chan Event

	// gateway operations, overridden in tests.
	join         func(channelID string) (*discordgo.VoiceConnection, error)
	speak        func(vc *discordgo.VoiceConnection, on bool) error
	hangup       func(vc *discordgo.VoiceConnection) error
	setPresence  func(name string) error
	lookupTarget func() (string, bool)

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	channelID string
	notReady  int

	framesSent  atomic.Uint64
	silenceSent atomic.Uint64
	sendDrops   atomic.Uint64
}

// New creates a Delivery bound to one guild and one followed user. The
// session's voice-state events are filtered down to the target user and
// surfaced as [EventTargetMoved].
func New(session *discordgo.Session, guildID, targetUserID string, ring *buffer.Ring) (*Delivery, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	d := &Delivery{
		guildID:  guildID,
		targetID: targetUserID,
		ring:     ring,
		enc:      enc,
		events:   make(chan Event, 16),
	}
	d.join = func(channelID string) (*discordgo.VoiceConnection, error) {
		return session.ChannelVoiceJoin(guildID, channelID, false, true)
	}
	d.speak = func(vc *discordgo.VoiceConnection, on bool) error {
		return vc.Speaking(on)
	}
	d.hangup = func(vc *discordgo.VoiceConnection) error {
		return vc.Disconnect()
	}
	d.setPresence = func(name string) error {
		return session.UpdateStreamingStatus(0, name, "")
	}
	d.lookupTarget = func() (string, bool) {
		guild, err := session.State.Guild(guildID)
		if err != nil {
			return "", false
		}
		for _, vs := range guild.VoiceStates {
			if vs.UserID == targetUserID {
				return vs.ChannelID, true
			}
		}
		return "", false
	}
	session.AddHandler(d.handleVoiceState)
	return d, nil
}

// Events delivers voice lifecycle events. Buffered; events are dropped with
// a warning rather than blocking the send path.
func (d *Delivery) Events() <-chan Event {
	return d.events
}

// ChannelID returns the currently joined channel, or empty.
func (d *Delivery) ChannelID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channelID
}

// TargetChannel reports the voice channel the followed user currently
// occupies, from gateway state. ok is false when the user is not in voice.
func (d *Delivery) TargetChannel() (channelID string, ok bool) {
	id, found := d.lookupTarget()
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// Stats reports cumulative send counters for metrics and status snapshots.
func (d *Delivery) Stats() (frames, silence, drops uint64) {
	return d.framesSent.Load(), d.silenceSent.Load(), d.sendDrops.Load()
}

// Join connects to the given voice channel, replacing any existing
// connection. Moving channels reuses the same flow: disconnect, then join.
func (d *Delivery) Join(channelID string) error {
	d.mu.Lock()
	old := d.vc
	d.vc = nil
	d.channelID = ""
	d.mu.Unlock()

	if old != nil {
		_ = d.hangup(old)
	}

	vc, err := d.join(channelID)
	if err != nil {
		return fmt.Errorf("voice: join channel %s: %w", channelID, err)
	}
	if err := d.speak(vc, true); err != nil {
		slog.Warn("failed to set speaking state", "error", err)
	}

	d.mu.Lock()
	d.vc = vc
	d.channelID = channelID
	d.notReady = 0
	d.mu.Unlock()

	slog.Info("joined voice channel", "channel", channelID)
	d.emit(Event{Type: EventJoined, ChannelID: channelID})
	return nil
}

// Leave disconnects from voice. Safe to call when not connected.
func (d *Delivery) Leave() error {
	d.mu.Lock()
	vc := d.vc
	d.vc = nil
	d.channelID = ""
	d.mu.Unlock()

	if vc == nil {
		return nil
	}
	_ = d.speak(vc, false)
	if err := d.hangup(vc); err != nil {
		return fmt.Errorf("voice: disconnect: %w", err)
	}
	slog.Info("left voice channel")
	return nil
}

// AnnounceStreaming sets the bot's presence to "streaming <name>". An empty
// name clears the activity.
func (d *Delivery) AnnounceStreaming(name string) {
	if err := d.setPresence(name); err != nil {
		slog.Warn("failed to update presence", "error", err)
	}
}

// Run drives the paced send loop until the context is cancelled. It always
// leaves the voice channel on the way out.
func (d *Delivery) Run(ctx context.Context) error {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.Leave()
			return ctx.Err()
		case <-ticker.C:
			d.sendTick()
		}
	}
}

// sendTick transmits exactly one frame. It never blocks past its slot: a
// full OpusSend channel means the frame is dropped and counted.
func (d *Delivery) sendTick() {
	d.mu.Lock()
	vc := d.vc
	d.mu.Unlock()
	if vc == nil {
		return
	}

	if !vc.Ready {
		d.mu.Lock()
		d.notReady++
		lost := d.notReady >= disconnectTicks && d.vc == vc
		var prev string
		if lost {
			d.vc = nil
			prev = d.channelID
			d.channelID = ""
		}
		d.mu.Unlock()
		if lost {
			slog.Warn("voice connection lost", "channel", prev)
			d.emit(Event{Type: EventDisconnected, PrevChannelID: prev})
		}
		return
	}

	d.mu.Lock()
	d.notReady = 0
	d.mu.Unlock()

	frame := d.ring.PullFrame()
	pkt, err := d.enc.encode(frame.Data)
	if err != nil {
		slog.Warn("opus encode failed, frame skipped", "error", err)
		return
	}

	select {
	case vc.OpusSend <- pkt:
		d.framesSent.Add(1)
		if frame.Silence {
			d.silenceSent.Add(1)
		}
	default:
		d.sendDrops.Add(1)
	}
}

// handleVoiceState surfaces the followed user's channel changes.
func (d *Delivery) handleVoiceState(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.UserID != d.targetID {
		return
	}
	var prev string
	if vsu.BeforeUpdate != nil {
		prev = vsu.BeforeUpdate.ChannelID
	}
	if prev == vsu.ChannelID {
		return
	}
	slog.Debug("target user moved", "from", prev, "to", vsu.ChannelID)
	d.emit(Event{Type: EventTargetMoved, ChannelID: vsu.ChannelID, PrevChannelID: prev})
}

// emit delivers an event without ever blocking the send path.
func (d *Delivery) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("voice event dropped, consumer stalled", "type", ev.Type)
	}
}
