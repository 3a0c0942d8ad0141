package source

import "testing"

func TestWatcher_NotifyCoalesces(t *testing.T) {
	w := NewWatcher()

	// A burst of notifications collapses into a single pending change.
	w.notify()
	w.notify()
	w.notify()

	select {
	case <-w.Changes():
	default:
		t.Fatal("no change delivered")
	}
	select {
	case <-w.Changes():
		t.Fatal("burst was queued instead of coalesced")
	default:
	}

	// After draining, the next notification is delivered again.
	w.notify()
	select {
	case <-w.Changes():
	default:
		t.Fatal("change after drain not delivered")
	}
}
