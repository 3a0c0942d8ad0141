// Package pipeline coordinates source discovery, capture and voice delivery.
//
// The coordinator is the only component that makes policy decisions. Capture
// and voice report facts on their event channels; everything that happens in
// response, including restarts, rejoins and backoff, is decided here in a
// single event loop.
package pipeline

import (
	"github.com/MrWong99/pulsecord/internal/source"
)

// State is the pipeline's externally visible phase.
type State int

const (
	// StateIdle means no source is selected.
	StateIdle State = iota

	// StateAwaitingSource means a selection exists but no live source
	// currently matches it.
	StateAwaitingSource

	// StateAwaitingChannel means capture could run but the followed user is
	// not in any voice channel.
	StateAwaitingChannel

	// StateStreaming means audio is flowing end to end.
	StateStreaming

	// StateReconnecting means a capture or voice failure is being retried
	// with backoff.
	StateReconnecting

	// StateFailed means retries were exhausted; a new selection or a target
	// channel change is required to leave this state.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSource:
		return "awaiting-source"
	case StateAwaitingChannel:
		return "awaiting-channel"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandKind classifies operator commands.
type CommandKind int

const (
	// CommandSelect picks a source to capture.
	CommandSelect CommandKind = iota

	// CommandStop clears the selection and stops streaming.
	CommandStop
)

// Command is an operator instruction delivered to the coordinator.
type Command struct {
	Kind      CommandKind
	Selection source.Selection
}

// Snapshot is a point-in-time copy of pipeline status for display. All
// slices and pointers are owned by the caller.
type Snapshot struct {
	State     State                `json:"state"`
	Reason    string               `json:"reason,omitempty"`
	Selection *source.Selection    `json:"selection,omitempty"`
	Sources   []source.AudioSource `json:"sources"`
	ChannelID string               `json:"channel_id,omitempty"`

	LevelLeft  float64 `json:"level_left"`
	LevelRight float64 `json:"level_right"`

	FramesSent    uint64 `json:"frames_sent"`
	SilenceFrames uint64 `json:"silence_frames"`
	SendDrops     uint64 `json:"send_drops"`
	ChunksDropped uint64 `json:"chunks_dropped"`
}
