package source

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultMatchThreshold is the minimum Jaro-Winkler similarity for a
	// fuzzy resolve to be accepted. Chosen conservatively: below it the
	// pipeline waits for the source rather than guessing.
	DefaultMatchThreshold = 0.70

	// goneLifespan is how long a vanished source stays listed before being
	// purged. Long enough to survive an application restart.
	goneLifespan = 60 * time.Second

	// spotifyName identifies Spotify streams for the policy gate.
	spotifyName = "Spotify"
)

// Option configures a [Registry].
type Option func(*Registry)

// WithMatchThreshold overrides [DefaultMatchThreshold].
func WithMatchThreshold(t float64) Option {
	return func(r *Registry) { r.threshold = t }
}

// WithSpotifyAllowed enables listing Spotify streams. Streaming Spotify to
// Discord conflicts with both services' terms, so this is off by default
// regardless of technical capability.
func WithSpotifyAllowed(allowed bool) Option {
	return func(r *Registry) { r.allowSpotify = allowed }
}

// WithClock overrides the time source. Tests use this to age sources.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry maintains the known set of audio sources across refreshes.
// Safe for concurrent use; Refresh is a pure function of the audio server's
// current listing plus the retained gone-source state.
type Registry struct {
	lister       Lister
	threshold    float64
	allowSpotify bool
	now          func() time.Time

	mu      sync.Mutex
	sources []AudioSource
}

// NewRegistry creates a Registry backed by the given lister.
func NewRegistry(lister Lister, opts ...Option) *Registry {
	r := &Registry{
		lister:    lister,
		threshold: DefaultMatchThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refresh queries the audio server and merges the result into the known set.
// Sources missing from the listing are marked gone and retained for a grace
// period; sources reappearing under a known index are updated in place.
// Returns [ErrSourceQuery] (wrapped) when the server is unreachable.
func (r *Registry) Refresh(ctx context.Context) error {
	inputs, err := r.lister.SinkInputs(ctx)
	if err != nil {
		return err
	}

	incoming := make([]AudioSource, 0, len(inputs))
	for _, in := range inputs {
		src := fromSinkInput(in, r.now())
		if !r.allowSpotify && strings.EqualFold(src.Application, spotifyName) {
			slog.Debug("skipping spotify source per policy", "index", src.Index)
			continue
		}
		incoming = append(incoming, src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Everything starts gone; live entries flip back to active below.
	for i := range r.sources {
		r.sources[i].Status = StatusGone
	}

	for _, src := range incoming {
		if i := r.indexOf(src); i >= 0 {
			src.LastSeen = r.now()
			r.sources[i] = src
		} else {
			r.sources = append(r.sources, src)
		}
	}

	// Purge gone sources past their lifespan.
	kept := r.sources[:0]
	for _, s := range r.sources {
		if s.Status == StatusGone && r.now().Sub(s.LastSeen) >= goneLifespan {
			continue
		}
		kept = append(kept, s)
	}
	r.sources = kept
	return nil
}

// indexOf finds an existing entry matching the incoming source by index or
// exact name. Caller holds r.mu.
func (r *Registry) indexOf(src AudioSource) int {
	for i, s := range r.sources {
		if s.Index == src.Index || strings.EqualFold(s.Name, src.Name) {
			return i
		}
	}
	return -1
}

// List returns a snapshot of known sources, most recently seen first.
func (r *Registry) List() []AudioSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AudioSource, len(r.sources))
	copy(out, r.sources)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastSeen.After(out[j-1].LastSeen); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Resolve maps a remembered selection onto a live source. The exact index is
// tried first; when the index is gone the active sources are ranked by name
// similarity and the best match above the threshold wins. Returns false when
// no source matches confidently enough.
func (r *Registry) Resolve(sel Selection) (AudioSource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best AudioSource
	var bestScore float64

	for _, s := range r.sources {
		if s.Status != StatusActive {
			continue
		}
		score := similarity(sel, s)
		if score > bestScore {
			best, bestScore = s, score
		}
	}

	if bestScore > r.threshold {
		return best, true
	}
	return AudioSource{}, false
}

// similarity scores how likely a live source is the remembered selection's
// successor. Index or exact-name identity is a perfect match; otherwise the
// best Jaro-Winkler score across display and application names, with a kind
// mismatch disqualifying entirely (a Firefox tab never becomes a standalone
// app).
func similarity(sel Selection, s AudioSource) float64 {
	if s.Index == sel.Index {
		return 1
	}
	if strings.EqualFold(s.Name, sel.Name) {
		return 1
	}
	if s.Kind != sel.Kind {
		return 0
	}

	score := matchr.JaroWinkler(strings.ToLower(sel.Name), strings.ToLower(s.Name), false)
	if app := matchr.JaroWinkler(strings.ToLower(sel.Application), strings.ToLower(s.Application), false); app > score {
		score = app
	}
	return score
}

// fromSinkInput parses a raw stream entry into an [AudioSource].
func fromSinkInput(in SinkInput, now time.Time) AudioSource {
	candidates := nameCandidates(in.Properties)
	kind := classifyKind(candidates)

	return AudioSource{
		Index:       in.Index,
		Name:        displayName(kind, candidates),
		Application: applicationName(in.Properties),
		Kind:        kind,
		Status:      StatusActive,
		Volume:      in.Volume,
		LastSeen:    now,
	}
}
