package source

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// watcherDebounce coalesces the burst of subscribe lines the server emits
// for a single logical change into one notification.
const watcherDebounce = 150 * time.Millisecond

// Watcher follows `pactl subscribe` and emits a notification whenever the
// server's sink-input set changes, so the registry can refresh on events
// instead of polling.
type Watcher struct {
	changes chan struct{}
}

// NewWatcher creates a Watcher. Notifications are delivered on [Changes]
// once [Run] is started.
func NewWatcher() *Watcher {
	return &Watcher{changes: make(chan struct{}, 1)}
}

// Changes delivers one value per observed sink-input change. The channel
// has capacity one; coalesced notifications are dropped, never queued.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run spawns the subscribe subprocess and blocks until ctx is cancelled or
// the subprocess fails. If pactl exits unexpectedly it is respawned after a
// short pause, since the audio server itself may be restarting.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("pactl subscribe exited, respawning", "err", err)

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// watch runs one pactl subscribe subprocess to completion.
func (w *Watcher) watch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "pactl", "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrSourceQuery, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn pactl subscribe: %v", ErrSourceQuery, err)
	}
	defer cmd.Wait()

	var timer *time.Timer
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if !strings.Contains(scanner.Text(), "sink-input") {
			continue
		}
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watcherDebounce, w.notify)
	}
	return scanner.Err()
}

// notify delivers a non-blocking change notification.
func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
