package pipeline

import "time"

// Backoff computes capped exponential retry delays. Delays never shrink
// between attempts, and once the attempt budget is spent the caller must
// treat the failure as persistent.
type Backoff struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
}

// NewBackoff creates a backoff starting at initial and doubling up to max,
// allowing maxAttempts retries before exhaustion.
func NewBackoff(initial, max time.Duration, maxAttempts int) *Backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, maxAttempts: maxAttempts}
}

// Next returns the delay before the next retry. ok is false once the
// attempt budget is exhausted.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	delay = b.initial << uint(b.attempt)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++
	return delay, true
}

// Attempt returns how many retries have been handed out since the last
// reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset clears the attempt counter after a sustained recovery.
func (b *Backoff) Reset() { b.attempt = 0 }
