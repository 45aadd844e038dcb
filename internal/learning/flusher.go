package learning

import (
	"context"
	"log/slog"
	"time"
)

// Flusher periodically writes a batched Store to disk.
type Flusher struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher creates a Flusher for store.
// If interval is <= 0, it defaults to 5s.
func NewFlusher(store *Store, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Flusher{
		store:    store,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := f.store.Flush(); err != nil {
				f.logger.Error("final learning flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := f.store.Flush(); err != nil {
				f.logger.Warn("learning flush failed", "error", err)
			}
		}
	}
}
