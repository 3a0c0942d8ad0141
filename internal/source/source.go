// Package source discovers candidate audio sources on the PulseAudio or
// PipeWire server and resolves a remembered selection back to a live source
// after the producing application restarts.
//
// The audio server assigns every application stream a fresh sink-input index
// each time it is created, so the index is only a technical key. The
// human-meaningful identity — the application — persists across restarts and
// is tracked as a remembered name. [Registry.Resolve] therefore tries the
// exact index first and falls back to Jaro-Winkler name similarity above a
// confidence threshold, preferring "no match" over a wrong match.
package source

import (
	"errors"
	"time"
)

// ErrSourceQuery indicates the audio server could not be queried. Callers
// decide on retry cadence; the registry does not retry internally.
var ErrSourceQuery = errors.New("source: audio server query failed")

// Status is the liveness of an [AudioSource].
type Status int

const (
	// StatusActive means the audio server currently reports the stream.
	StatusActive Status = iota

	// StatusGone means the stream vanished from the server listing. The
	// registry keeps gone sources for a grace period so a quick application
	// restart can be re-acquired under the remembered identity.
	StatusGone
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Kind distinguishes standalone applications from browser tabs. Browsers
// expose one stream per tab, all carrying the browser's application name, so
// tab streams need their media title as display name instead.
type Kind int

const (
	KindStandalone Kind = iota
	KindFirefoxTab
	KindChromeTab
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFirefoxTab:
		return "firefox-tab"
	case KindChromeTab:
		return "chrome-tab"
	default:
		return "standalone"
	}
}

// AudioSource is a candidate producer of audio on the system.
type AudioSource struct {
	// Index is the sink-input index assigned by the audio server. It is
	// invalidated whenever the producing application recreates its stream.
	Index uint32

	// Name is the best display name chosen from the stream's properties.
	Name string

	// Application is the process or application name used for matching.
	Application string

	// Kind classifies the source for display-name and matching purposes.
	Kind Kind

	// Status is the current liveness.
	Status Status

	// Volume is the stream's own volume as a linear factor, used for
	// normalisation hints in the UI.
	Volume float64

	// LastSeen is when the audio server last reported this stream.
	LastSeen time.Time
}

// Selection is the remembered choice of which source to follow. It survives
// the underlying index becoming invalid so the registry can re-acquire a
// successor stream by name.
type Selection struct {
	Index       uint32
	Name        string
	Application string
	Kind        Kind
}

// Select captures a selection from a live source.
func Select(s AudioSource) Selection {
	return Selection{
		Index:       s.Index,
		Name:        s.Name,
		Application: s.Application,
		Kind:        s.Kind,
	}
}
