package cache

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically purges expired cache rows. Purging is purely
// advisory housekeeping: staleness checks compare expiry timestamps, so
// correctness never depends on a row actually being gone.
type Janitor struct {
	store    EntryStore
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
}

// NewJanitor creates a Janitor sweeping at the given interval.
// If interval is <= 0, it defaults to one hour.
func NewJanitor(store EntryStore, interval time.Duration, opts ...Option) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	s := settings{clock: realClock{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Janitor{
		store:    store,
		interval: interval,
		clock:    s.clock,
		logger:   slog.Default(),
	}
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. Sweep failures are logged and the loop keeps going.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Warn("cache sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce purges rows expired as of now and returns how many went.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	purged, err := j.store.DeleteExpired(ctx, j.clock.Now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		j.logger.Debug("purged expired cache entries", "count", purged)
	}
	return purged, nil
}
