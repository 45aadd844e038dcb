package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is how long a Watcher waits after the last record
// change before reloading.
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads a Manager when profile records change on disk, for
// example when another process edits or restores a profile.
type Watcher struct {
	m     *Manager
	delay time.Duration
	fw    *fsnotify.Watcher

	// reloaded, when set, is called after every reload attempt.
	reloaded func(error)
}

// NewWatcher starts watching the Manager's directory. Call Run to process
// events; Run closes the underlying watcher when it returns.
func NewWatcher(m *Manager, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(m.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", m.dir, err)
	}
	return &Watcher{m: m, delay: delay, fw: fw}, nil
}

// Run processes change events until ctx is cancelled. Bursts of events are
// coalesced into one LoadAll.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, fileExt) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.m.logger.Debug("profile record changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(w.delay)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.m.logger.Warn("profile watcher error", "error", err)

		case <-timer.C:
			err := w.m.LoadAll()
			if err != nil {
				w.m.logger.Warn("reloading profiles failed", "error", err)
			} else {
				w.m.logger.Info("reloaded profiles after change on disk", "count", len(w.m.Names()))
			}
			if w.reloaded != nil {
				w.reloaded(err)
			}
		}
	}
}
